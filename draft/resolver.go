package draft

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dhcgn/mail-merge/model"
	"github.com/dhcgn/mail-merge/store"
)

// Resolver combines the template sheet and the matching draft.
type Resolver struct {
	source store.TemplateSource
	cache  *Cache
	logger *slog.Logger
}

func NewResolver(source store.TemplateSource, cache *Cache, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{source: source, cache: cache, logger: logger}
}

// Config reads and parses the template sheet only.
func (r *Resolver) Config(ctx context.Context) (model.TemplateConfig, error) {
	rows, err := r.source.TemplateSheet(ctx)
	if err != nil {
		return model.TemplateConfig{}, fmt.Errorf("read template sheet: %w", err)
	}
	return ParseSheet(rows)
}

// Resolve returns the batch template.
func (r *Resolver) Resolve(ctx context.Context) (model.Template, error) {
	cfg, err := r.Config(ctx)
	if err != nil {
		return model.Template{}, err
	}

	d, err := r.cache.Lookup(ctx, cfg.Subject)
	if err != nil {
		return model.Template{}, err
	}

	body := d.Body()
	tmpl := model.Template{
		Subject:           d.Subject,
		Body:              body,
		SenderName:        cfg.SenderName,
		AdditionalTo:      cfg.AdditionalTo,
		CC:                cfg.CC,
		BCC:               cfg.BCC,
		Attachments:       d.Attachments,
		ReplyMode:         cfg.ReplyMode,
		IncludeRecipients: cfg.IncludeRecipients,
		OriginalSubject:   cfg.OriginalSubject,
		OriginalTo:        cfg.OriginalTo,
	}
	if strings.Contains(strings.ToLower(body), "cid:") {
		tmpl.InlineImages = ResolveInlineImages(body, d.Inline)
		r.logger.Debug("resolved inline images", "referenced", len(findImageRefs(body)), "available", len(d.Inline), "resolved", len(tmpl.InlineImages))
	}

	r.logger.Info("template resolved",
		"subject", tmpl.Subject,
		"replyMode", tmpl.ReplyMode.String(),
		"attachments", len(tmpl.Attachments),
		"inlineImages", len(tmpl.InlineImages),
	)
	return tmpl, nil
}

// Package thread finds the conversation a reply-mode send should go into.
package thread

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/dhcgn/mail-merge/clock"
	"github.com/dhcgn/mail-merge/gateway"
	"github.com/dhcgn/mail-merge/model"
	"github.com/dhcgn/mail-merge/rfc822"
)

const (
	// DefaultWindow bounds how far back thread searches look.
	DefaultWindow = 72 * time.Hour
	defaultLimit  = 10
)

// Params describes the thread to find for one contact.
type Params struct {
	OriginalSubject string
	Mode            model.ReplyMode
	Target          string
	OriginalTo      string
}

// Resolver searches sent and inbox mail for candidate threads.
type Resolver struct {
	gw     gateway.Gateway
	clock  clock.Clock
	window time.Duration
	limit  int
	logger *slog.Logger
}

func NewResolver(gw gateway.Gateway, clk clock.Clock, window time.Duration, logger *slog.Logger) *Resolver {
	if window <= 0 {
		window = DefaultWindow
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{gw: gw, clock: clk, window: window, limit: defaultLimit, logger: logger}
}

// Queries builds the sent-mail and inbox queries for p.
func (r *Resolver) Queries(p Params) []gateway.Query {
	subject := rfc822.StripReply(p.OriginalSubject)
	since := r.clock.Now().Add(-r.window)

	sent := gateway.Query{
		Mailbox: gateway.MailboxSent,
		Subject: subject,
		Since:   since,
	}
	if p.Mode == model.ReplyModeBcc {
		sent.Predicates = append(sent.Predicates, gateway.Only(gateway.FieldBcc, p.Target))
	} else {
		sent.Predicates = append(sent.Predicates, gateway.Recipient(p.Target))
	}
	if p.OriginalTo != "" {
		sent.Predicates = append(sent.Predicates, gateway.Only(gateway.FieldTo, p.OriginalTo))
	}

	inbox := gateway.Query{
		Mailbox: gateway.MailboxInbox,
		Subject: subject,
		Predicates: []gateway.Predicate{
			{Fields: []gateway.Field{gateway.FieldFrom, gateway.FieldTo}, Address: p.Target},
		},
		Since: since,
	}
	return []gateway.Query{sent, inbox}
}

// Find returns every candidate thread, newest first. Deciding what to do with
// zero or several candidates is left to the caller. A failing search makes
// the result empty.
func (r *Resolver) Find(ctx context.Context, p Params) []model.Thread {
	byID := make(map[string]model.Thread)
	for _, q := range r.Queries(p) {
		threads, err := r.gw.Search(ctx, q, r.limit)
		if err != nil {
			r.logger.Warn("thread search failed", "target", p.Target, "mailbox", q.Mailbox.String(), "err", err)
			return nil
		}
		for _, t := range threads {
			if existing, ok := byID[t.ID]; ok && !t.LastMessageAt.After(existing.LastMessageAt) {
				continue
			}
			byID[t.ID] = t
		}
	}

	out := make([]model.Thread, 0, len(byID))
	for _, t := range byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	r.logger.Debug("thread candidates", "target", p.Target, "count", len(out))
	return out
}

// Package gmail implements the mail gateway on the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/dhcgn/mail-merge/gateway"
	"github.com/dhcgn/mail-merge/gauth"
	"github.com/dhcgn/mail-merge/model"
	"github.com/dhcgn/mail-merge/rfc822"
)

const defaultUser = "me"

var threadHeaders = []string{"Subject", "Date", "Message-ID", "In-Reply-To", "References", "From", "To", "Cc", "Bcc"}

type Options struct {
	CredentialsFile string
	// User is the mailbox to act for. Service accounts impersonate it.
	User string
	// From is the sender address written into composed messages.
	From string
}

type Gateway struct {
	svc    *gmailapi.Service
	user   string
	from   string
	logger *slog.Logger
}

func New(ctx context.Context, opts Options, logger *slog.Logger) (*Gateway, error) {
	subject := opts.User
	if subject == defaultUser {
		subject = ""
	}
	client, err := gauth.HTTPClient(ctx, opts.CredentialsFile, subject, gauth.ScopeGmail)
	if err != nil {
		return nil, err
	}
	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewWithService(svc, opts, logger), nil
}

// NewWithService wraps an existing service.
func NewWithService(svc *gmailapi.Service, opts Options, logger *slog.Logger) *Gateway {
	user := opts.User
	if user == "" {
		user = defaultUser
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{svc: svc, user: user, from: opts.From, logger: logger}
}

func (g *Gateway) Name() string { return "gmail" }

func (g *Gateway) ListDrafts(ctx context.Context, limit int) ([]model.Draft, error) {
	resp, err := g.svc.Users.Drafts.List(g.user).MaxResults(int64(limit)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}

	drafts := make([]model.Draft, 0, len(resp.Drafts))
	for _, ref := range resp.Drafts {
		full, err := g.svc.Users.Drafts.Get(g.user, ref.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get draft %s: %w", ref.Id, err)
		}
		if full.Message == nil || full.Message.Raw == "" {
			continue
		}
		raw, err := decodeRaw(full.Message.Raw)
		if err != nil {
			g.logger.Warn("skipping undecodable draft", "draftID", ref.Id, "err", err)
			continue
		}
		d, err := rfc822.ParseDraft(raw)
		if err != nil {
			g.logger.Warn("skipping unreadable draft", "draftID", ref.Id, "err", err)
			continue
		}
		d.ID = ref.Id
		if full.Message.InternalDate > 0 {
			d.Date = time.UnixMilli(full.Message.InternalDate)
		}
		drafts = append(drafts, d)
	}
	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].Date.After(drafts[j].Date)
	})
	return drafts, nil
}

func (g *Gateway) Send(ctx context.Context, msg model.Message) error {
	return g.send(ctx, msg, nil)
}

func (g *Gateway) Reply(ctx context.Context, thread model.Thread, msg model.Message) error {
	return g.send(ctx, msg, &thread)
}

func (g *Gateway) send(ctx context.Context, msg model.Message, thread *model.Thread) error {
	raw, id, err := rfc822.Compose(rfc822.Outgoing{
		From:    g.from,
		Message: msg,
		Date:    time.Now(),
		Thread:  thread,
		KeepBcc: true,
	})
	if err != nil {
		return err
	}

	out := &gmailapi.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	if thread != nil {
		out.ThreadId = thread.ID
	}
	sent, err := g.svc.Users.Messages.Send(g.user, out).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	g.logger.Debug("gmail message sent", "messageID", id, "gmailID", sent.Id, "threadID", sent.ThreadId)
	return nil
}

func (g *Gateway) Search(ctx context.Context, q gateway.Query, limit int) ([]model.Thread, error) {
	query := q.String()
	call := g.svc.Users.Threads.List(g.user).Q(query).Context(ctx)
	if limit > 0 {
		call = call.MaxResults(int64(limit))
	}
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("search threads %q: %w", query, err)
	}

	threads := make([]model.Thread, 0, len(resp.Threads))
	for _, ref := range resp.Threads {
		full, err := g.svc.Users.Threads.Get(g.user, ref.Id).Format("metadata").MetadataHeaders(threadHeaders...).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get thread %s: %w", ref.Id, err)
		}
		if len(full.Messages) == 0 {
			continue
		}
		threads = append(threads, threadOf(ref.Id, full.Messages[len(full.Messages)-1]))
	}
	g.logger.Debug("gmail search", "query", query, "threads", len(threads))
	return threads, nil
}

// threadOf summarizes a thread by its last message.
func threadOf(id string, last *gmailapi.Message) model.Thread {
	var env rfc822.Envelope
	if last.Payload != nil {
		if parsed, err := rfc822.ParseEnvelope(headerBlock(last.Payload.Headers)); err == nil {
			env = parsed
		}
	}
	at := env.Date
	if last.InternalDate > 0 {
		at = time.UnixMilli(last.InternalDate)
	}
	return model.Thread{
		ID:            id,
		Subject:       env.Subject,
		LastMessageAt: at,
		LastMessageID: env.MessageID,
		References:    env.References,
		CC:            env.Cc,
		BCC:           env.Bcc,
	}
}

// headerBlock rebuilds a raw header section from API headers.
func headerBlock(headers []*gmailapi.MessagePartHeader) []byte {
	var sb strings.Builder
	for _, h := range headers {
		if h == nil || h.Name == "" {
			continue
		}
		sb.WriteString(h.Name)
		sb.WriteString(": ")
		sb.WriteString(strings.ReplaceAll(h.Value, "\n", " "))
		sb.WriteString("\r\n")
	}
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

func decodeRaw(s string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Package mbox implements the mail gateway on local mbox files. Drafts are
// read from one file; sent messages are appended to an outbox file that
// later searches read back. It backs dry runs.
package mbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/dhcgn/mail-merge/filter"
	"github.com/dhcgn/mail-merge/gateway"
	"github.com/dhcgn/mail-merge/model"
	"github.com/dhcgn/mail-merge/rfc822"
)

type Options struct {
	DraftsPath string
	OutboxPath string
	// InboxPath is optional; inbox searches find nothing without it.
	InboxPath string
	From      string
}

type Gateway struct {
	opts   Options
	now    func() time.Time
	logger *slog.Logger

	mu sync.Mutex
}

func New(opts Options, logger *slog.Logger) (*Gateway, error) {
	if strings.TrimSpace(opts.OutboxPath) == "" {
		return nil, fmt.Errorf("mbox outbox path is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{opts: opts, now: time.Now, logger: logger}, nil
}

func (g *Gateway) Name() string { return "mbox" }

// OutboxPath is where sent messages end up.
func (g *Gateway) OutboxPath() string { return g.opts.OutboxPath }

func (g *Gateway) ListDrafts(ctx context.Context, limit int) ([]model.Draft, error) {
	if strings.TrimSpace(g.opts.DraftsPath) == "" {
		return nil, fmt.Errorf("mbox drafts path is empty")
	}

	var drafts []model.Draft
	err := Read(ctx, g.opts.DraftsPath, func(idx int, raw []byte) error {
		d, err := rfc822.ParseDraft(raw)
		if err != nil {
			g.logger.Warn("skipping unreadable draft", "path", g.opts.DraftsPath, "index", idx, "err", err)
			return nil
		}
		if d.ID == "" {
			d.ID = fmt.Sprintf("%d", idx)
		}
		drafts = append(drafts, d)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Later entries in the file are newer when dates tie or are missing.
	for i, j := 0, len(drafts)-1; i < j; i, j = i+1, j-1 {
		drafts[i], drafts[j] = drafts[j], drafts[i]
	}
	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].Date.After(drafts[j].Date)
	})
	if limit > 0 && len(drafts) > limit {
		drafts = drafts[:limit]
	}
	return drafts, nil
}

func (g *Gateway) Send(ctx context.Context, msg model.Message) error {
	return g.write(ctx, msg, nil)
}

func (g *Gateway) Reply(ctx context.Context, thread model.Thread, msg model.Message) error {
	return g.write(ctx, msg, &thread)
}

func (g *Gateway) write(ctx context.Context, msg model.Message, thread *model.Thread) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := g.now()
	raw, id, err := rfc822.Compose(rfc822.Outgoing{
		From:    g.opts.From,
		Message: msg,
		Date:    now,
		Thread:  thread,
		KeepBcc: true,
	})
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	file, err := os.OpenFile(g.opts.OutboxPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer file.Close()

	w := mboxlib.NewWriter(file)
	mw, err := w.CreateMessage(envelopeSender(g.opts.From), now)
	if err != nil {
		return fmt.Errorf("create outbox message: %w", err)
	}
	if _, err := mw.Write(raw); err != nil {
		return fmt.Errorf("write outbox message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close outbox message: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync outbox: %w", err)
	}

	g.logger.Debug("message written to outbox", "messageID", id, "path", g.opts.OutboxPath, "to", strings.Join(msg.To, ","))
	return nil
}

func (g *Gateway) Search(ctx context.Context, q gateway.Query, limit int) ([]model.Thread, error) {
	f, err := filter.New(q)
	if err != nil {
		return nil, err
	}

	var paths []string
	switch q.Mailbox {
	case gateway.MailboxSent:
		paths = []string{g.opts.OutboxPath}
	case gateway.MailboxInbox:
		paths = []string{g.opts.InboxPath}
	default:
		paths = []string{g.opts.OutboxPath, g.opts.InboxPath}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var envs []rfc822.Envelope
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		err := Read(ctx, path, func(idx int, raw []byte) error {
			env, err := rfc822.ParseEnvelope(filter.HeaderSection(raw))
			if err != nil {
				g.logger.Debug("skipping unreadable message", "path", path, "index", idx, "err", err)
				return nil
			}
			if f.Allows(env) {
				envs = append(envs, env)
			}
			return nil
		})
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return rfc822.Threads(envs, limit), nil
}

// Read calls fn with every message of the mbox file at path.
func Read(ctx context.Context, path string, fn func(idx int, raw []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	reader := mboxlib.NewReader(file)

	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("message %d read: %w", idx, err)
		}
		if err := fn(idx, raw); err != nil {
			return err
		}
	}
}

// CountMessages counts the messages in an mbox file.
func CountMessages(ctx context.Context, path string) (int, error) {
	count := 0
	err := Read(ctx, path, func(int, []byte) error {
		count++
		return nil
	})
	return count, err
}

func envelopeSender(from string) string {
	if from == "" {
		return "MAILER-DAEMON"
	}
	return from
}

// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dhcgn/mail-merge/gateway"
	"github.com/dhcgn/mail-merge/model"
)

// Mail is one stored message of the fake mailbox.
type Mail struct {
	ThreadID string
	From     string
	Mailbox  gateway.Mailbox
	At       time.Time
	Message  model.Message
}

// Reply records one Reply call.
type Reply struct {
	Thread  model.Thread
	Message model.Message
}

// Fake is a scriptable gateway. By default every send is delivered and
// searches match against delivered and preloaded mail.
type Fake struct {
	mu sync.Mutex

	Drafts []model.Draft
	Mail   []Mail
	// Now stamps delivered mail.
	Now func() time.Time

	// SendFn decides the outcome of a send: deliver controls whether the
	// message lands in the sent folder, err is returned to the caller.
	SendFn   func(msg model.Message) (deliver bool, err error)
	SearchFn func(q gateway.Query, limit int) ([]model.Thread, error)
	ReplyFn  func(thread model.Thread, msg model.Message) error

	ListCalls []int
	Attempts  []model.Message
	Searches  []gateway.Query
	Replies   []Reply
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) ListDrafts(ctx context.Context, limit int) ([]model.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCalls = append(f.ListCalls, limit)
	if limit > len(f.Drafts) {
		limit = len(f.Drafts)
	}
	return append([]model.Draft(nil), f.Drafts[:limit]...), nil
}

func (f *Fake) Send(ctx context.Context, msg model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Attempts = append(f.Attempts, msg)
	deliver, err := true, error(nil)
	if f.SendFn != nil {
		deliver, err = f.SendFn(msg)
	}
	if deliver {
		f.Mail = append(f.Mail, Mail{
			ThreadID: fmt.Sprintf("thread-%d", len(f.Mail)+1),
			Mailbox:  gateway.MailboxSent,
			At:       f.now(),
			Message:  msg,
		})
	}
	return err
}

// Sent returns the messages that were delivered by Send.
func (f *Fake) Sent() []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.Mail {
		if m.Mailbox == gateway.MailboxSent && m.From == "" {
			out = append(out, m.Message)
		}
	}
	return out
}

func (f *Fake) Search(ctx context.Context, q gateway.Query, limit int) ([]model.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Searches = append(f.Searches, q)
	if f.SearchFn != nil {
		return f.SearchFn(q, limit)
	}

	var threads []model.Thread
	seen := make(map[string]bool)
	for i := len(f.Mail) - 1; i >= 0; i-- {
		m := f.Mail[i]
		if !matches(q, m) || seen[m.ThreadID] {
			continue
		}
		seen[m.ThreadID] = true
		threads = append(threads, model.Thread{
			ID:            m.ThreadID,
			Subject:       m.Message.Subject,
			LastMessageAt: m.At,
			LastMessageID: m.ThreadID + "@fake",
			CC:            m.Message.Options.CC,
			BCC:           m.Message.Options.BCC,
		})
		if limit > 0 && len(threads) == limit {
			break
		}
	}
	return threads, nil
}

func (f *Fake) Reply(ctx context.Context, thread model.Thread, msg model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Replies = append(f.Replies, Reply{Thread: thread, Message: msg})
	if f.ReplyFn != nil {
		return f.ReplyFn(thread, msg)
	}
	return nil
}

func (f *Fake) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func matches(q gateway.Query, m Mail) bool {
	if q.Mailbox != gateway.MailboxAny && q.Mailbox != m.Mailbox {
		return false
	}
	if !q.Since.IsZero() && m.At.Before(q.Since) {
		return false
	}
	if q.Subject != "" && !strings.Contains(strings.ToLower(m.Message.Subject), strings.ToLower(q.Subject)) {
		return false
	}
	for _, p := range q.Predicates {
		if !matchPredicate(p, m) {
			return false
		}
	}
	return true
}

func matchPredicate(p gateway.Predicate, m Mail) bool {
	for _, field := range p.Fields {
		var list []string
		switch field {
		case gateway.FieldFrom:
			list = []string{m.From}
		case gateway.FieldTo:
			list = m.Message.To
		case gateway.FieldCc:
			list = m.Message.Options.CC
		case gateway.FieldBcc:
			list = m.Message.Options.BCC
		}
		for _, addr := range list {
			if strings.EqualFold(strings.TrimSpace(addr), strings.TrimSpace(p.Address)) {
				return true
			}
		}
	}
	return false
}

package mbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dhcgn/mail-merge/gateway"
	"github.com/dhcgn/mail-merge/model"
)

const draftsMbox = `From me@example.com Mon Jun  3 09:00:00 2024
Subject: Hello {{Name}}
Date: Mon, 03 Jun 2024 09:00:00 +0000
Message-ID: <old@example.com>
Content-Type: text/plain; charset=utf-8

Old body {{Name}}

From me@example.com Mon Jun 10 09:00:00 2024
Subject: Hello {{Name}}
Date: Mon, 10 Jun 2024 09:00:00 +0000
Message-ID: <new@example.com>
Content-Type: text/html; charset=utf-8

<p>New body {{Name}}</p>

From me@example.com Tue Jun 11 09:00:00 2024
Subject: Unrelated
Date: Tue, 11 Jun 2024 09:00:00 +0000
Message-ID: <other@example.com>
Content-Type: text/plain; charset=utf-8

Other
`

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	dir := t.TempDir()
	drafts := filepath.Join(dir, "drafts.mbox")
	if err := os.WriteFile(drafts, []byte(draftsMbox), 0o600); err != nil {
		t.Fatalf("write drafts: %v", err)
	}
	g, err := New(Options{
		DraftsPath: drafts,
		OutboxPath: filepath.Join(dir, "outbox.mbox"),
		From:       "me@example.com",
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	g.now = func() time.Time { return time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC) }
	return g
}

func TestListDrafts(t *testing.T) {
	g := newTestGateway(t)

	drafts, err := g.ListDrafts(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListDrafts() error = %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("ListDrafts() returned %d drafts, want 2", len(drafts))
	}
	if drafts[0].ID != "other@example.com" || drafts[1].ID != "new@example.com" {
		t.Errorf("draft order = %q, %q, want other, new", drafts[0].ID, drafts[1].ID)
	}
	if drafts[1].HTMLBody == "" {
		t.Error("newest Hello draft has no HTML body")
	}
}

func TestSendSearchReply(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	msg := model.Message{
		To:      []string{"ann@example.com"},
		Subject: "Hello Ann",
		Options: model.SendOptions{HTMLBody: "<p>Hi Ann</p>", BCC: []string{"audit@example.com"}},
	}

	if err := g.Send(ctx, msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	since := g.now().Add(-72 * time.Hour)
	sentTo := func(addr string) gateway.Query {
		return gateway.Query{
			Mailbox:    gateway.MailboxSent,
			Subject:    "Hello Ann",
			Predicates: []gateway.Predicate{gateway.Only(gateway.FieldTo, addr)},
			Since:      since,
		}
	}

	threads, err := g.Search(ctx, sentTo("ann@example.com"), 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("Search() returned %d threads, want 1", len(threads))
	}
	first := threads[0]

	if got, _ := g.Search(ctx, sentTo("bob@example.com"), 5); len(got) != 0 {
		t.Errorf("Search(bob) returned %d threads, want 0", len(got))
	}
	bcc := gateway.Query{Mailbox: gateway.MailboxSent, Predicates: []gateway.Predicate{gateway.Only(gateway.FieldBcc, "audit@example.com")}, Since: since}
	if got, _ := g.Search(ctx, bcc, 5); len(got) != 1 {
		t.Errorf("Search(bcc) returned %d threads, want 1", len(got))
	}

	g.now = func() time.Time { return time.Date(2024, 6, 12, 11, 0, 0, 0, time.UTC) }
	if err := g.Reply(ctx, first, msg); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}

	threads, err = g.Search(ctx, sentTo("ann@example.com"), 5)
	if err != nil {
		t.Fatalf("Search() after reply error = %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("Search() after reply returned %d threads, want 1", len(threads))
	}
	if threads[0].ID != first.ID {
		t.Errorf("reply thread = %q, want %q", threads[0].ID, first.ID)
	}
	if threads[0].LastMessageID == first.LastMessageID {
		t.Error("thread still points at the original message after a reply")
	}

	n, err := CountMessages(ctx, g.OutboxPath())
	if err != nil {
		t.Fatalf("CountMessages() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountMessages() = %d, want 2", n)
	}
}

func TestSearchWithoutOutbox(t *testing.T) {
	g := newTestGateway(t)
	threads, err := g.Search(context.Background(), gateway.Query{Mailbox: gateway.MailboxSent, Subject: "x"}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(threads) != 0 {
		t.Errorf("Search() returned %d threads, want 0", len(threads))
	}
}

func TestNewRequiresOutbox(t *testing.T) {
	if _, err := New(Options{DraftsPath: "drafts.mbox"}, nil); err == nil {
		t.Error("New() error = nil, want an error")
	}
}

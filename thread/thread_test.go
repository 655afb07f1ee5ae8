package thread

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dhcgn/mail-merge/clock"
	"github.com/dhcgn/mail-merge/gateway"
	"github.com/dhcgn/mail-merge/gateway/gatewaytest"
	"github.com/dhcgn/mail-merge/model"
)

var now = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func newResolver(gw gateway.Gateway) *Resolver {
	return NewResolver(gw, clock.NewFake(now), 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestQueries(t *testing.T) {
	r := newResolver(&gatewaytest.Fake{})

	tests := []struct {
		name string
		p    Params
		want []string
	}{
		{
			name: "reply to",
			p:    Params{OriginalSubject: "Re: Kick-off", Mode: model.ReplyModeTo, Target: "jane@example.com"},
			want: []string{
				`in:sent subject:"Kick-off" {to:"jane@example.com" cc:"jane@example.com" bcc:"jane@example.com"} after:1717761600`,
				`in:inbox subject:"Kick-off" {from:"jane@example.com" to:"jane@example.com"} after:1717761600`,
			},
		},
		{
			name: "reply bcc with original to",
			p:    Params{OriginalSubject: "Kick-off", Mode: model.ReplyModeBcc, Target: "jane@example.com", OriginalTo: "list@example.com"},
			want: []string{
				`in:sent subject:"Kick-off" bcc:"jane@example.com" to:"list@example.com" after:1717761600`,
				`in:inbox subject:"Kick-off" {from:"jane@example.com" to:"jane@example.com"} after:1717761600`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs := r.Queries(tt.p)
			if len(qs) != len(tt.want) {
				t.Fatalf("Queries() = %d queries", len(qs))
			}
			for i := range qs {
				if got := qs[i].String(); got != tt.want[i] {
					t.Errorf("query %d = %s\nwant %s", i, got, tt.want[i])
				}
			}
		})
	}
}

func TestFindMergesAndSorts(t *testing.T) {
	gw := &gatewaytest.Fake{
		SearchFn: func(q gateway.Query, limit int) ([]model.Thread, error) {
			if q.Mailbox == gateway.MailboxSent {
				return []model.Thread{
					{ID: "a", LastMessageAt: now.Add(-3 * time.Hour)},
					{ID: "b", LastMessageAt: now.Add(-1 * time.Hour)},
				}, nil
			}
			return []model.Thread{
				{ID: "a", LastMessageAt: now.Add(-30 * time.Minute)},
				{ID: "c", LastMessageAt: now.Add(-2 * time.Hour)},
			}, nil
		},
	}

	got := newResolver(gw).Find(context.Background(), Params{OriginalSubject: "x", Target: "jane@example.com"})

	wantIDs := []string{"a", "b", "c"}
	if len(got) != len(wantIDs) {
		t.Fatalf("Find() = %v", got)
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("Find()[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
	if !got[0].LastMessageAt.Equal(now.Add(-30 * time.Minute)) {
		t.Errorf("merged thread kept older timestamp %v", got[0].LastMessageAt)
	}
}

func TestFindSearchErrorMeansNoCandidates(t *testing.T) {
	gw := &gatewaytest.Fake{
		SearchFn: func(q gateway.Query, limit int) ([]model.Thread, error) {
			if q.Mailbox == gateway.MailboxInbox {
				return nil, errors.New("quota exceeded")
			}
			return []model.Thread{{ID: "a"}}, nil
		},
	}
	if got := newResolver(gw).Find(context.Background(), Params{Target: "jane@example.com"}); len(got) != 0 {
		t.Errorf("Find() = %v, want no candidates", got)
	}
}

func TestFindUsesWindow(t *testing.T) {
	gw := &gatewaytest.Fake{Mail: []gatewaytest.Mail{
		{ThreadID: "old", Mailbox: gateway.MailboxSent, At: now.Add(-5 * 24 * time.Hour),
			Message: model.Message{To: []string{"jane@example.com"}, Subject: "Kick-off"}},
		{ThreadID: "new", Mailbox: gateway.MailboxSent, At: now.Add(-time.Hour),
			Message: model.Message{To: []string{"jane@example.com"}, Subject: "Kick-off"}},
	}}
	got := newResolver(gw).Find(context.Background(), Params{OriginalSubject: "Kick-off", Target: "JANE@example.com"})
	if len(got) != 1 || got[0].ID != "new" {
		t.Errorf("Find() = %v, want only the thread inside the window", got)
	}
}

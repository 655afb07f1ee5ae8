package draft

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dhcgn/mail-merge/clock"
	"github.com/dhcgn/mail-merge/gateway/gatewaytest"
	"github.com/dhcgn/mail-merge/model"
	"github.com/dhcgn/mail-merge/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseSheet(t *testing.T) {
	tests := []struct {
		name    string
		rows    [][]string
		want    model.TemplateConfig
		wantErr error
	}{
		{
			name: "full reply sheet",
			rows: [][]string{
				{"Subject", "Kick-off follow up"},
				{"Sender Name", "Jane"},
				{"Additional To", "team@example.com"},
				{"CC", "cc@example.com"},
				{"BCC", ""},
				{"Reply Mode", "Reply To"},
				{"Include Recipients", "Yes"},
				{"Original Subject", "Re: Kick-off"},
				{"Original To", "list@example.com"},
			},
			want: model.TemplateConfig{
				Subject:           "Kick-off follow up",
				SenderName:        "Jane",
				AdditionalTo:      "team@example.com",
				CC:                "cc@example.com",
				ReplyMode:         model.ReplyModeTo,
				IncludeRecipients: true,
				OriginalSubject:   "Re: Kick-off",
				OriginalTo:        "list@example.com",
			},
		},
		{
			name: "short sheet defaults to new mail",
			rows: [][]string{{"Subject", "Hello"}, {"Sender Name"}},
			want: model.TemplateConfig{Subject: "Hello"},
		},
		{
			name:    "placeholder subject",
			rows:    [][]string{{"Subject", PlaceholderSubject}},
			wantErr: ErrNotConfigured,
		},
		{
			name:    "empty sheet",
			rows:    nil,
			wantErr: ErrNotConfigured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSheet(tt.rows)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseSheet() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got != tt.want {
				t.Errorf("ParseSheet() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func drafts(n int) []model.Draft {
	out := make([]model.Draft, n)
	for i := range out {
		out[i] = model.Draft{ID: fmt.Sprint(i), Subject: fmt.Sprintf("Draft %d", i), HTMLBody: "<p>body</p>"}
	}
	return out
}

func TestCacheTiers(t *testing.T) {
	gw := &gatewaytest.Fake{Drafts: drafts(30)}
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewCache(gw, clk, DefaultCacheConfig, quietLogger())
	ctx := context.Background()

	if d, err := c.Lookup(ctx, "draft 3"); err != nil || d.ID != "3" {
		t.Fatalf("Lookup(recent) = %+v, %v", d, err)
	}
	if got := gw.ListCalls; len(got) != 1 || got[0] != 10 {
		t.Fatalf("ListCalls = %v, want [10]", got)
	}

	if d, err := c.Lookup(ctx, "  DRAFT   25 "); err != nil || d.ID != "25" {
		t.Fatalf("Lookup(older) = %+v, %v", d, err)
	}
	if got := gw.ListCalls; len(got) != 2 || got[1] != 50 {
		t.Fatalf("ListCalls = %v, want [10 50]", got)
	}

	if _, err := c.Lookup(ctx, "missing"); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("Lookup(missing) error = %v, want ErrDraftNotFound", err)
	}
	if len(gw.ListCalls) != 2 {
		t.Errorf("expanded cache should not be refetched before expiry, calls = %v", gw.ListCalls)
	}

	clk.Advance(DefaultCacheConfig.TTL)
	if _, err := c.Lookup(ctx, "draft 1"); err != nil {
		t.Fatalf("Lookup() after expiry error = %v", err)
	}
	if got := gw.ListCalls; len(got) != 3 || got[2] != 10 {
		t.Errorf("ListCalls = %v, want refill with small tier", got)
	}
}

func TestCacheKeepsNewestPerSubject(t *testing.T) {
	gw := &gatewaytest.Fake{Drafts: []model.Draft{
		{ID: "new", Subject: "Same"},
		{ID: "old", Subject: "Same"},
	}}
	c := NewCache(gw, clock.NewFake(time.Now()), DefaultCacheConfig, quietLogger())
	d, err := c.Lookup(context.Background(), "same")
	if err != nil || d.ID != "new" {
		t.Errorf("Lookup() = %+v, %v, want newest", d, err)
	}
}

func part(cid, name string) model.InlinePart {
	return model.InlinePart{ContentID: cid, Filename: name, ContentType: "image/png", Content: []byte(name)}
}

func TestResolveInlineImages(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		parts []model.InlinePart
		want  map[string]string
	}{
		{
			name:  "content id",
			body:  `<img src="cid:ii_abc">`,
			parts: []model.InlinePart{part("other", "x.png"), part("ii_abc", "logo.png")},
			want:  map[string]string{"ii_abc": "logo.png"},
		},
		{
			name:  "alt text",
			body:  `<img alt="banner.jpg" src="cid:ii_1"><img src="cid:ii_2" alt="logo.png">`,
			parts: []model.InlinePart{part("", "logo.png"), part("", "banner.jpg")},
			want:  map[string]string{"ii_1": "banner.jpg", "ii_2": "logo.png"},
		},
		{
			name:  "content id contains filename",
			body:  `<img src="cid:company_logo_2024"><img src="cid:zz">`,
			parts: []model.InlinePart{part("", "footer.png"), part("", "Company-Logo.png")},
			want:  map[string]string{"company_logo_2024": "Company-Logo.png", "zz": "footer.png"},
		},
		{
			name:  "short names are not matched by containment",
			body:  `<img src="cid:abc_image"><img src="cid:other">`,
			parts: []model.InlinePart{part("", "x.png"), part("", "abc.png")},
			want:  map[string]string{"abc_image": "x.png", "other": "abc.png"},
		},
		{
			name:  "reuse when exhausted",
			body:  `<img src="cid:a1"><img src="cid:a2">`,
			parts: []model.InlinePart{part("", "only.png")},
			want:  map[string]string{"a1": "only.png", "a2": "only.png"},
		},
		{
			name:  "no references",
			body:  `<p>no images</p>`,
			parts: []model.InlinePart{part("", "only.png")},
			want:  map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveInlineImages(tt.body, tt.parts)
			if len(got) != len(tt.want) {
				t.Fatalf("ResolveInlineImages() = %d images, want %d", len(got), len(tt.want))
			}
			for cid, file := range tt.want {
				if got[cid].Filename != file {
					t.Errorf("cid %s -> %q, want %q", cid, got[cid].Filename, file)
				}
			}
		})
	}
}

func TestResolverResolve(t *testing.T) {
	src := store.NewMemory(nil, 8)
	src.SetTemplate([][]string{
		{"Subject", "Welcome"},
		{"Sender Name", "Acme"},
	})
	gw := &gatewaytest.Fake{Drafts: []model.Draft{{
		Subject:     "Welcome",
		HTMLBody:    `<p>Hi {{Name}}</p><img src="cid:logo">`,
		Attachments: []model.Attachment{{Filename: "a.pdf"}},
		Inline:      []model.InlinePart{part("logo", "logo.png")},
	}}}
	r := NewResolver(src, NewCache(gw, clock.NewFake(time.Now()), DefaultCacheConfig, quietLogger()), quietLogger())

	tmpl, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if tmpl.Subject != "Welcome" || tmpl.SenderName != "Acme" || tmpl.Reply() {
		t.Errorf("Resolve() = %+v", tmpl)
	}
	if len(tmpl.Attachments) != 1 || tmpl.InlineImages["logo"].Filename != "logo.png" {
		t.Errorf("attachments = %v, inline = %v", tmpl.Attachments, tmpl.InlineImages)
	}

	src.SetTemplate([][]string{{"Subject", "Unknown draft"}})
	if _, err := r.Resolve(context.Background()); !errors.Is(err, ErrDraftNotFound) {
		t.Errorf("Resolve() error = %v, want ErrDraftNotFound", err)
	}
}

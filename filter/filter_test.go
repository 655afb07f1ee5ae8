package filter

import (
	"testing"
	"time"

	"github.com/dhcgn/mail-merge/gateway"
	"github.com/dhcgn/mail-merge/rfc822"
)

func TestFilterAllows(t *testing.T) {
	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	q := gateway.Query{
		Mailbox: gateway.MailboxSent,
		Subject: "Hello (Ann)",
		Predicates: []gateway.Predicate{
			gateway.Recipient("ann@example.com"),
		},
		Since: since,
	}
	f, err := New(q)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	match := rfc822.Envelope{Subject: "Re: hello (ann) again", Date: since.Add(time.Hour), Bcc: []string{"ANN@example.com"}}
	tests := []struct {
		name string
		env  func() rfc822.Envelope
		want bool
	}{
		{"match", func() rfc822.Envelope { return match }, true},
		{"too old", func() rfc822.Envelope { e := match; e.Date = since.Add(-time.Minute); return e }, false},
		{"no date", func() rfc822.Envelope { e := match; e.Date = time.Time{}; return e }, false},
		{"other subject", func() rfc822.Envelope { e := match; e.Subject = "Goodbye"; return e }, false},
		{"address is substring", func() rfc822.Envelope { e := match; e.Bcc = []string{"joann@example.com"}; return e }, false},
		{"address only in from", func() rfc822.Envelope { e := match; e.Bcc = nil; e.From = []string{"ann@example.com"}; return e }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Allows(tt.env()); got != tt.want {
				t.Errorf("Allows() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterIgnoresDirectives(t *testing.T) {
	f, err := New(gateway.Query{Subject: "Kickoff newer_than:10y"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !f.Allows(rfc822.Envelope{Subject: "Kickoff"}) {
		t.Error("Allows() = false, want directive text to be ignored")
	}
}

func TestFilterBlankTerms(t *testing.T) {
	f, err := New(gateway.Query{Subject: "  ", Predicates: []gateway.Predicate{gateway.Recipient(" ")}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !f.Allows(rfc822.Envelope{Subject: "anything"}) {
		t.Error("Allows() = false, want blank terms to match everything")
	}
}

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		term    string
		text    string
		wantNil bool
		want    bool
	}{
		{"", "", true, false},
		{"   ", "x", true, false},
		{"a.b@example.com", "a.b@example.com", false, true},
		{"a.b@example.com", "axb@example.com", false, false},
		{" ann@example.com ", "ANN@example.com", false, true},
	}
	for _, tt := range tests {
		re, err := compilePattern(`(?i)^`, `$`, tt.term)
		if err != nil {
			t.Fatalf("compilePattern(%q) error = %v", tt.term, err)
		}
		if (re == nil) != tt.wantNil {
			t.Errorf("compilePattern(%q) = %v, want nil %v", tt.term, re, tt.wantNil)
			continue
		}
		if re != nil && re.MatchString(tt.text) != tt.want {
			t.Errorf("compilePattern(%q).MatchString(%q) = %v, want %v", tt.term, tt.text, !tt.want, tt.want)
		}
	}
}

func TestSplitRawMessage(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantHeader string
		wantBody   string
	}{
		{"crlf", "Subject: a\r\n\r\nbody", "Subject: a", "body"},
		{"lf", "Subject: a\n\nbody", "Subject: a", "body"},
		{"header only", "Subject: a", "Subject: a", ""},
		{"empty", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, body := SplitRawMessage([]byte(tt.raw))
			if string(header) != tt.wantHeader || string(body) != tt.wantBody {
				t.Errorf("SplitRawMessage() = %q, %q, want %q, %q", header, body, tt.wantHeader, tt.wantBody)
			}
		})
	}
}

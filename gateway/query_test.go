package gateway

import (
	"strings"
	"testing"
	"time"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Quarterly update", "Quarterly update"},
		{`Say "hi"`, `Say \"hi\"`},
		{`back\slash`, `back\\slash`},
		{"news older_than:10y", "news"},
		{"x NEWER_THAN:400d y", "x y"},
		{"a after:2001/01/01 b", "a b"},
		{`"} OR subject:{"`, `\"} OR subject:{\"`},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQueryString(t *testing.T) {
	since := time.Unix(1700000000, 0)

	tests := []struct {
		name string
		q    Query
		want string
	}{
		{
			name: "sent recipient",
			q: Query{
				Mailbox:    MailboxSent,
				Subject:    "Hello",
				Predicates: []Predicate{Recipient("a@example.com")},
				Since:      since,
			},
			want: `in:sent subject:"Hello" {to:"a@example.com" cc:"a@example.com" bcc:"a@example.com"} after:1700000000`,
		},
		{
			name: "inbox with original to",
			q: Query{
				Mailbox: MailboxInbox,
				Subject: "Hello",
				Predicates: []Predicate{
					{Fields: []Field{FieldFrom, FieldTo}, Address: "a@example.com"},
					Only(FieldTo, "list@example.com"),
				},
			},
			want: `in:inbox subject:"Hello" {from:"a@example.com" to:"a@example.com"} to:"list@example.com"`,
		},
		{
			name: "injection is neutralised",
			q: Query{
				Subject: `x" older_than:9y`,
				Since:   since,
			},
			want: `subject:"x\"" after:1700000000`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.String(); got != tt.want {
				t.Errorf("String() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestQuerySanitizedKeepsOriginal(t *testing.T) {
	q := Query{Subject: `a"b`, Predicates: []Predicate{Recipient(`c"d`)}}
	s := q.Sanitized()
	if q.Subject != `a"b` || q.Predicates[0].Address != `c"d` {
		t.Fatal("Sanitized() modified the receiver")
	}
	if !strings.Contains(s.Subject, `\"`) || !strings.Contains(s.Predicates[0].Address, `\"`) {
		t.Errorf("Sanitized() = %+v", s)
	}
}

func TestQueryPlain(t *testing.T) {
	q := Query{Subject: `Say "hi" newer_than:1y`, Predicates: []Predicate{Only(FieldTo, "a@example.com")}}
	p := q.Plain()
	if p.Subject != `Say "hi"` {
		t.Errorf("Plain().Subject = %q, want %q", p.Subject, `Say "hi"`)
	}
	if p.Predicates[0].Address != "a@example.com" {
		t.Errorf("Plain().Predicates[0].Address = %q", p.Predicates[0].Address)
	}
}

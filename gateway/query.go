package gateway

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Mailbox selects where a query looks.
type Mailbox int

const (
	MailboxAny Mailbox = iota
	MailboxSent
	MailboxInbox
)

func (m Mailbox) String() string {
	switch m {
	case MailboxSent:
		return "sent"
	case MailboxInbox:
		return "inbox"
	default:
		return "anywhere"
	}
}

// Field is an address header.
type Field string

const (
	FieldFrom Field = "from"
	FieldTo   Field = "to"
	FieldCc   Field = "cc"
	FieldBcc  Field = "bcc"
)

// Predicate holds when Address appears in at least one of Fields.
type Predicate struct {
	Fields  []Field
	Address string
}

// Query is a structured mail search. All predicates must hold. Subject is a
// phrase match; Since bounds the search window and is required.
type Query struct {
	Mailbox    Mailbox
	Subject    string
	Predicates []Predicate
	Since      time.Time
}

// Recipient is the predicate "address in To, Cc or Bcc".
func Recipient(addr string) Predicate {
	return Predicate{Fields: []Field{FieldTo, FieldCc, FieldBcc}, Address: addr}
}

// Only is the predicate "address in the given field".
func Only(field Field, addr string) Predicate {
	return Predicate{Fields: []Field{field}, Address: addr}
}

var windowDirective = regexp.MustCompile(`(?i)\b(older_than|newer_than|after|before|older|newer)\s*:\s*\S*`)

// StripDirectives removes search window directives from user text and
// collapses whitespace.
func StripDirectives(s string) string {
	s = windowDirective.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// Sanitize makes user text safe to embed in a quoted search term. Window
// directives are removed so callers cannot widen the search; backslashes and
// quotes are escaped.
func Sanitize(s string) string {
	s = StripDirectives(s)
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// Sanitized returns a copy of q with every user supplied value escaped for
// the textual query form.
func (q Query) Sanitized() Query {
	return q.mapValues(Sanitize)
}

// Plain returns a copy of q with window directives stripped but no escaping.
// Backends that pass terms as structured arguments (IMAP SEARCH, local
// mailbox matching) use this form.
func (q Query) Plain() Query {
	return q.mapValues(StripDirectives)
}

func (q Query) mapValues(fn func(string) string) Query {
	out := q
	out.Subject = fn(q.Subject)
	out.Predicates = make([]Predicate, 0, len(q.Predicates))
	for _, p := range q.Predicates {
		out.Predicates = append(out.Predicates, Predicate{Fields: p.Fields, Address: fn(p.Address)})
	}
	return out
}

// String renders q in Gmail search syntax.
func (q Query) String() string {
	q = q.Sanitized()
	var parts []string
	switch q.Mailbox {
	case MailboxSent:
		parts = append(parts, "in:sent")
	case MailboxInbox:
		parts = append(parts, "in:inbox")
	}
	if q.Subject != "" {
		parts = append(parts, fmt.Sprintf(`subject:"%s"`, q.Subject))
	}
	for _, p := range q.Predicates {
		if p.Address == "" || len(p.Fields) == 0 {
			continue
		}
		terms := make([]string, 0, len(p.Fields))
		for _, f := range p.Fields {
			terms = append(terms, fmt.Sprintf(`%s:"%s"`, f, p.Address))
		}
		if len(terms) == 1 {
			parts = append(parts, terms[0])
		} else {
			parts = append(parts, "{"+strings.Join(terms, " ")+"}")
		}
	}
	if !q.Since.IsZero() {
		parts = append(parts, fmt.Sprintf("after:%d", q.Since.Unix()))
	}
	return strings.Join(parts, " ")
}

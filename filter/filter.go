// Package filter matches stored messages against a gateway query for
// backends that have no server-side search.
package filter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dhcgn/mail-merge/gateway"
	"github.com/dhcgn/mail-merge/rfc822"
)

type predicate struct {
	fields  []gateway.Field
	pattern *regexp.Regexp
}

// Filter holds compiled patterns for one query.
type Filter struct {
	since      time.Time
	subject    *regexp.Regexp
	predicates []predicate
}

// New compiles q. Subject terms match case-insensitively anywhere in the
// subject; addresses must match a whole address.
func New(q gateway.Query) (*Filter, error) {
	q = q.Plain()

	subject, err := compilePattern(`(?i)`, ``, q.Subject)
	if err != nil {
		return nil, fmt.Errorf("compile subject pattern: %w", err)
	}

	f := &Filter{since: q.Since, subject: subject}
	for _, p := range q.Predicates {
		pattern, err := compilePattern(`(?i)^`, `$`, p.Address)
		if err != nil {
			return nil, fmt.Errorf("compile address pattern: %w", err)
		}
		if pattern == nil || len(p.Fields) == 0 {
			continue
		}
		f.predicates = append(f.predicates, predicate{fields: p.Fields, pattern: pattern})
	}
	return f, nil
}

// Allows reports whether env satisfies every part of the query.
func (f *Filter) Allows(env rfc822.Envelope) bool {
	if !f.since.IsZero() && (env.Date.IsZero() || env.Date.Before(f.since)) {
		return false
	}
	if f.subject != nil && !f.subject.MatchString(env.Subject) {
		return false
	}
	for _, p := range f.predicates {
		if !p.allows(env) {
			return false
		}
	}
	return true
}

func (p predicate) allows(env rfc822.Envelope) bool {
	for _, field := range p.fields {
		for _, addr := range addressesOf(env, field) {
			if p.pattern.MatchString(addr) {
				return true
			}
		}
	}
	return false
}

func addressesOf(env rfc822.Envelope, field gateway.Field) []string {
	switch field {
	case gateway.FieldFrom:
		return env.From
	case gateway.FieldTo:
		return env.To
	case gateway.FieldCc:
		return env.Cc
	case gateway.FieldBcc:
		return env.Bcc
	}
	return nil
}

// SplitRawMessage splits a raw email message into header and body parts.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}

	return raw, nil
}

// compilePattern turns a literal term into an anchored pattern. An empty
// term yields nil.
func compilePattern(prefix, suffix, term string) (*regexp.Regexp, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	re, err := regexp.Compile(prefix + regexp.QuoteMeta(term) + suffix)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", term, err)
	}
	return re, nil
}

// HeaderSection returns a copy of the header of raw followed by the empty
// line that ends it, so the body is never parsed.
func HeaderSection(raw []byte) []byte {
	header, _ := SplitRawMessage(raw)
	out := make([]byte, 0, len(header)+4)
	out = append(out, header...)
	return append(out, "\r\n\r\n"...)
}

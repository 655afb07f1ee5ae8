// Package draft resolves the batch template: the configuration sheet plus
// the mail draft it names.
package draft

import (
	"errors"
	"strings"

	"github.com/dhcgn/mail-merge/model"
)

var (
	// ErrNotConfigured means the template sheet still holds the placeholder
	// subject or no subject at all.
	ErrNotConfigured = errors.New("template not configured: set the draft subject in the template sheet")
	// ErrDraftNotFound means no recent draft carries the configured subject.
	ErrDraftNotFound = errors.New("no draft found with the configured subject")
)

// PlaceholderSubject is the text a fresh template sheet carries.
const PlaceholderSubject = "Enter your draft email subject here"

// Rows of the template sheet, 0-based. The value sits in the second column.
const (
	rowSubject = iota
	rowSenderName
	rowAdditionalTo
	rowCC
	rowBCC
	rowReplyMode
	rowIncludeRecipients
	rowOriginalSubject
	rowOriginalTo
)

// ParseSheet reads the fixed template layout. Missing rows leave their
// field empty, so a short sheet means a plain new-mail batch.
func ParseSheet(rows [][]string) (model.TemplateConfig, error) {
	value := func(row int) string {
		if row < len(rows) && len(rows[row]) > 1 {
			return strings.TrimSpace(rows[row][1])
		}
		return ""
	}

	cfg := model.TemplateConfig{
		Subject:           value(rowSubject),
		SenderName:        value(rowSenderName),
		AdditionalTo:      value(rowAdditionalTo),
		CC:                value(rowCC),
		BCC:               value(rowBCC),
		ReplyMode:         model.ParseReplyMode(value(rowReplyMode)),
		IncludeRecipients: parseBool(value(rowIncludeRecipients)),
		OriginalSubject:   value(rowOriginalSubject),
		OriginalTo:        value(rowOriginalTo),
	}
	if cfg.Subject == "" || strings.EqualFold(cfg.Subject, PlaceholderSubject) {
		return cfg, ErrNotConfigured
	}
	return cfg, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "yes", "y", "1", "x", "✓", "✔":
		return true
	}
	return false
}

// normalizeSubject is the cache key for a subject.
func normalizeSubject(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

package model

import "strings"

// ReplyMode selects between composing new mail and replying in a thread.
type ReplyMode int

const (
	ReplyModeNew ReplyMode = iota
	ReplyModeTo
	ReplyModeBcc
)

func (m ReplyMode) String() string {
	switch m {
	case ReplyModeTo:
		return "ReplyTo"
	case ReplyModeBcc:
		return "ReplyBcc"
	default:
		return "New"
	}
}

// ParseReplyMode accepts the labels used in the template sheet. Anything it
// does not recognise is treated as ReplyModeNew.
func ParseReplyMode(s string) ReplyMode {
	normalized := strings.ToLower(strings.Join(strings.Fields(s), ""))
	normalized = strings.NewReplacer("-", "", "_", "").Replace(normalized)
	switch normalized {
	case "replyto", "reply", "to":
		return ReplyModeTo
	case "replybcc", "bcc":
		return ReplyModeBcc
	default:
		return ReplyModeNew
	}
}

// TemplateConfig is the template sheet content before the draft is resolved.
type TemplateConfig struct {
	Subject           string
	SenderName        string
	AdditionalTo      string
	CC                string
	BCC               string
	ReplyMode         ReplyMode
	IncludeRecipients bool
	OriginalSubject   string
	OriginalTo        string
}

// Template is everything needed to personalize and send one batch.
type Template struct {
	Subject string
	Body    string

	SenderName   string
	AdditionalTo string
	CC           string
	BCC          string

	Attachments  []Attachment
	InlineImages map[string]Attachment

	ReplyMode         ReplyMode
	IncludeRecipients bool
	OriginalSubject   string
	OriginalTo        string
}

// Reply reports whether the template sends into existing threads.
func (t Template) Reply() bool {
	return t.ReplyMode != ReplyModeNew
}

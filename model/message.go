package model

import "time"

// Attachment is an opaque binary blob sent with every email.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// InlinePart is an image embedded in a draft body, as found in the draft.
// ContentID is empty when the source did not carry one.
type InlinePart struct {
	ContentID   string
	Filename    string
	ContentType string
	Content     []byte
}

// Draft is a mail draft resolved from the gateway by subject.
type Draft struct {
	ID          string
	Subject     string
	HTMLBody    string
	TextBody    string
	Date        time.Time
	Attachments []Attachment
	Inline      []InlinePart
}

// Body returns the HTML body, falling back to the plain text body.
func (d Draft) Body() string {
	if d.HTMLBody != "" {
		return d.HTMLBody
	}
	return d.TextBody
}

// SendOptions carries the optional parts of an outgoing message.
// Empty fields mean "not set".
type SendOptions struct {
	HTMLBody     string
	SenderName   string
	CC           []string
	BCC          []string
	Attachments  []Attachment
	InlineImages map[string]Attachment
}

// Message is a fully personalized email ready for the gateway.
type Message struct {
	To      []string
	Subject string
	Options SendOptions
}

// Thread is a candidate conversation returned by a gateway search.
type Thread struct {
	ID            string
	Subject       string
	LastMessageAt time.Time
	// LastMessageID is the RFC 5322 Message-Id of the newest message, used
	// for In-Reply-To when replying.
	LastMessageID string
	References    []string
	CC            []string
	BCC           []string
}

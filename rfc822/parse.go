package rfc822

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/dhcgn/mail-merge/model"
)

// Envelope is the header summary of a stored message.
type Envelope struct {
	MessageID  string
	Subject    string
	Date       time.Time
	From       []string
	To         []string
	Cc         []string
	Bcc        []string
	InReplyTo  []string
	References []string
}

// ParseEnvelope reads only the header of raw.
func ParseEnvelope(raw []byte) (Envelope, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && mr == nil {
		return Envelope{}, fmt.Errorf("parse message header: %w", err)
	}
	defer mr.Close()
	return envelopeOf(mr.Header), nil
}

func envelopeOf(h mail.Header) Envelope {
	env := Envelope{
		From: addresses(h, "From"),
		To:   addresses(h, "To"),
		Cc:   addresses(h, "Cc"),
		Bcc:  addresses(h, "Bcc"),
	}
	env.Subject, _ = h.Subject()
	env.Date, _ = h.Date()
	env.MessageID, _ = h.MessageID()
	env.InReplyTo, _ = h.MsgIDList("In-Reply-To")
	env.References, _ = h.MsgIDList("References")
	return env
}

func addresses(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}

// ParseDraft extracts subject, bodies, attachments and inline images.
func ParseDraft(raw []byte) (model.Draft, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && mr == nil {
		return model.Draft{}, fmt.Errorf("parse draft: %w", err)
	}
	defer mr.Close()

	env := envelopeOf(mr.Header)
	d := model.Draft{
		ID:      env.MessageID,
		Subject: env.Subject,
		Date:    env.Date,
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return d, fmt.Errorf("read draft part: %w", err)
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			return d, fmt.Errorf("read draft part body: %w", err)
		}

		contentType, _, _ := headerContentType(part.Header)
		disposition, filename := dispositionOf(part.Header)
		cid := strings.Trim(strings.TrimSpace(part.Header.Get("Content-Id")), "<>")

		switch {
		case disposition != "attachment" && filename == "" && contentType == "text/html":
			d.HTMLBody = string(body)
		case disposition != "attachment" && filename == "" && strings.HasPrefix(contentType, "text/"):
			d.TextBody = string(body)
		case disposition != "attachment" && strings.HasPrefix(contentType, "image/") && (cid != "" || disposition == "inline"):
			d.Inline = append(d.Inline, model.InlinePart{
				ContentID:   cid,
				Filename:    filename,
				ContentType: contentType,
				Content:     body,
			})
		default:
			d.Attachments = append(d.Attachments, model.Attachment{
				Filename:    filename,
				ContentType: contentType,
				Content:     body,
			})
		}
	}
	return d, nil
}

func headerContentType(h mail.PartHeader) (string, map[string]string, error) {
	switch ph := h.(type) {
	case *mail.InlineHeader:
		return ph.ContentType()
	case *mail.AttachmentHeader:
		return ph.ContentType()
	}
	return "", nil, nil
}

// dispositionOf returns the Content-Disposition value (empty when absent) and
// the filename, taken from the disposition or the Content-Type name.
func dispositionOf(h mail.PartHeader) (string, string) {
	switch ph := h.(type) {
	case *mail.AttachmentHeader:
		disp, _, _ := ph.ContentDisposition()
		name, _ := ph.Filename()
		if name == "" {
			_, ctParams, _ := ph.ContentType()
			name = ctParams["name"]
		}
		return disp, name
	case *mail.InlineHeader:
		disp, params, _ := ph.ContentDisposition()
		name := params["filename"]
		if name == "" {
			_, ctParams, _ := ph.ContentType()
			name = ctParams["name"]
		}
		return disp, name
	}
	return "", ""
}

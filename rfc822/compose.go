// Package rfc822 builds and parses the MIME messages exchanged with mail
// backends.
package rfc822

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"mime"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"

	"github.com/dhcgn/mail-merge/model"
)

// Outgoing describes one message to serialize.
type Outgoing struct {
	From    string
	Message model.Message
	Date    time.Time
	// Thread, when set, makes the message a reply: subject gets a "Re:"
	// prefix and In-Reply-To/References point at the thread.
	Thread *model.Thread
	// KeepBcc writes the Bcc header. Only APIs that strip it themselves
	// (Gmail) want this.
	KeepBcc bool
}

// Compose serializes o and returns the raw message and its Message-Id.
func Compose(o Outgoing) ([]byte, string, error) {
	msg := o.Message
	opts := msg.Options

	var h mail.Header
	date := o.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Name: opts.SenderName, Address: o.From}})
	h.SetAddressList("To", addressList(msg.To))
	if len(opts.CC) > 0 {
		h.SetAddressList("Cc", addressList(opts.CC))
	}
	if o.KeepBcc && len(opts.BCC) > 0 {
		h.SetAddressList("Bcc", addressList(opts.BCC))
	}

	subject := msg.Subject
	if o.Thread != nil {
		subject = ReplySubject(subject)
		if o.Thread.LastMessageID != "" {
			h.SetMsgIDList("In-Reply-To", []string{o.Thread.LastMessageID})
			refs := append(append([]string(nil), o.Thread.References...), o.Thread.LastMessageID)
			h.SetMsgIDList("References", refs)
		}
	}
	h.SetSubject(subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, "", fmt.Errorf("generate message id: %w", err)
	}
	id, err := h.MessageID()
	if err != nil {
		return nil, "", fmt.Errorf("read message id: %w", err)
	}
	h.Set("MIME-Version", "1.0")
	h.SetContentType("multipart/mixed", nil)

	var buf bytes.Buffer
	w, err := message.CreateWriter(&buf, h.Header)
	if err != nil {
		return nil, "", fmt.Errorf("create message writer: %w", err)
	}

	if err := writeBody(w, opts.HTMLBody, opts.InlineImages); err != nil {
		return nil, "", err
	}
	for _, att := range opts.Attachments {
		if err := writeBinary(w, "attachment", "", att); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), id, nil
}

// writeBody writes multipart/related(multipart/alternative(text, html),
// inline images...). Without images the related wrapper is omitted.
func writeBody(parent *message.Writer, htmlBody string, inline map[string]model.Attachment) error {
	target := parent
	if len(inline) > 0 {
		var rh message.Header
		rh.SetContentType("multipart/related", map[string]string{"type": "multipart/alternative"})
		rw, err := parent.CreatePart(rh)
		if err != nil {
			return fmt.Errorf("create related part: %w", err)
		}
		target = rw
	}

	var ah message.Header
	ah.SetContentType("multipart/alternative", nil)
	aw, err := target.CreatePart(ah)
	if err != nil {
		return fmt.Errorf("create alternative part: %w", err)
	}
	if err := writeText(aw, "text/plain", PlainText(htmlBody)); err != nil {
		return err
	}
	if err := writeText(aw, "text/html", htmlBody); err != nil {
		return err
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("close alternative part: %w", err)
	}

	cids := make([]string, 0, len(inline))
	for cid := range inline {
		cids = append(cids, cid)
	}
	sort.Strings(cids)
	for _, cid := range cids {
		if err := writeBinary(target, "inline", cid, inline[cid]); err != nil {
			return err
		}
	}
	if target != parent {
		if err := target.Close(); err != nil {
			return fmt.Errorf("close related part: %w", err)
		}
	}
	return nil
}

func writeText(parent *message.Writer, contentType, body string) error {
	var th message.Header
	th.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	th.Set("Content-Transfer-Encoding", "quoted-printable")
	pw, err := parent.CreatePart(th)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return pw.Close()
}

func writeBinary(parent *message.Writer, disposition, cid string, att model.Attachment) error {
	var bh message.Header
	bh.SetContentType(contentTypeOf(att), nil)
	bh.Set("Content-Transfer-Encoding", "base64")
	params := map[string]string{}
	if att.Filename != "" {
		params["filename"] = att.Filename
	}
	bh.SetContentDisposition(disposition, params)
	if cid != "" {
		bh.Set("Content-Id", "<"+cid+">")
	}
	pw, err := parent.CreatePart(bh)
	if err != nil {
		return fmt.Errorf("create %s part %q: %w", disposition, att.Filename, err)
	}
	if _, err := pw.Write(att.Content); err != nil {
		return fmt.Errorf("write %s part %q: %w", disposition, att.Filename, err)
	}
	return pw.Close()
}

func contentTypeOf(att model.Attachment) string {
	if att.ContentType != "" {
		return att.ContentType
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(att.Filename))); t != "" {
		return t
	}
	return "application/octet-stream"
}

func addressList(addrs []string) []*mail.Address {
	list := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		if a = strings.TrimSpace(a); a != "" {
			list = append(list, &mail.Address{Address: a})
		}
	}
	return list
}

var replyPrefix = regexp.MustCompile(`(?i)^\s*(re\s*:\s*)+`)

// StripReply removes any leading "Re:" prefixes.
func StripReply(subject string) string {
	return strings.TrimSpace(replyPrefix.ReplaceAllString(subject, ""))
}

// ReplySubject returns subject with exactly one "Re: " prefix.
func ReplySubject(subject string) string {
	return "Re: " + StripReply(subject)
}

var (
	textPolicy  = bluemonday.StrictPolicy()
	blockBreaks = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|li|tr|h[1-6])>`)
	blankLines  = regexp.MustCompile(`\n{3,}`)
)

// PlainText derives the text/plain alternative of an HTML body.
func PlainText(htmlBody string) string {
	text := blockBreaks.ReplaceAllString(htmlBody, "$0\n")
	text = html.UnescapeString(textPolicy.Sanitize(text))
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	return strings.TrimSpace(blankLines.ReplaceAllString(text, "\n\n"))
}

// Recipients lists every envelope recipient of msg: To, Cc and Bcc.
func Recipients(msg model.Message) []string {
	var out []string
	for _, group := range [][]string{msg.To, msg.Options.CC, msg.Options.BCC} {
		for _, a := range group {
			if a = strings.TrimSpace(a); a != "" {
				out = append(out, a)
			}
		}
	}
	return out
}

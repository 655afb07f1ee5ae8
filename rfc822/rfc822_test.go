package rfc822

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/dhcgn/mail-merge/model"
)

func TestComposeParseRoundTrip(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	out := Outgoing{
		From: "me@example.com",
		Date: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Message: model.Message{
			To:      []string{"jane@example.com"},
			Subject: "Hello Jane",
			Options: model.SendOptions{
				HTMLBody:   `<p>Hi Jane</p><img src="cid:logo">`,
				SenderName: "Acme Team",
				CC:         []string{"cc@example.com"},
				BCC:        []string{"audit@example.com"},
				Attachments: []model.Attachment{
					{Filename: "terms.pdf", Content: []byte("%PDF-1.4")},
				},
				InlineImages: map[string]model.Attachment{
					"logo": {Filename: "logo.png", ContentType: "image/png", Content: png},
				},
			},
		},
	}

	raw, id, err := Compose(out)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if id == "" {
		t.Error("Compose() returned empty message id")
	}
	if bytes.Contains(raw, []byte("audit@example.com")) {
		t.Error("Bcc leaked into headers without KeepBcc")
	}

	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("ParseEnvelope() error = %v", err)
	}
	if env.Subject != "Hello Jane" || env.MessageID != id {
		t.Errorf("envelope = %+v", env)
	}
	if len(env.To) != 1 || env.To[0] != "jane@example.com" || len(env.Cc) != 1 {
		t.Errorf("recipients = %v / %v", env.To, env.Cc)
	}

	d, err := ParseDraft(raw)
	if err != nil {
		t.Fatalf("ParseDraft() error = %v", err)
	}
	if !strings.Contains(d.HTMLBody, `cid:logo`) {
		t.Errorf("HTMLBody = %q", d.HTMLBody)
	}
	if strings.TrimSpace(d.TextBody) != "Hi Jane" {
		t.Errorf("TextBody = %q", d.TextBody)
	}
	if len(d.Attachments) != 1 || d.Attachments[0].Filename != "terms.pdf" || string(d.Attachments[0].Content) != "%PDF-1.4" {
		t.Errorf("Attachments = %+v", d.Attachments)
	}
	if len(d.Inline) != 1 || d.Inline[0].ContentID != "logo" || !bytes.Equal(d.Inline[0].Content, png) {
		t.Errorf("Inline = %+v", d.Inline)
	}
}

func TestComposeReply(t *testing.T) {
	thread := &model.Thread{
		ID:            "t1",
		LastMessageID: "last@example.com",
		References:    []string{"first@example.com"},
	}
	raw, _, err := Compose(Outgoing{
		From:    "me@example.com",
		Thread:  thread,
		KeepBcc: true,
		Message: model.Message{
			To:      []string{"jane@example.com"},
			Subject: "Re: RE: Kick-off",
			Options: model.SendOptions{HTMLBody: "<p>Following up</p>", BCC: []string{"audit@example.com"}},
		},
	})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("ParseEnvelope() error = %v", err)
	}
	if env.Subject != "Re: Kick-off" {
		t.Errorf("Subject = %q, want %q", env.Subject, "Re: Kick-off")
	}
	if len(env.InReplyTo) != 1 || env.InReplyTo[0] != "last@example.com" {
		t.Errorf("InReplyTo = %v", env.InReplyTo)
	}
	if len(env.References) != 2 || env.References[1] != "last@example.com" {
		t.Errorf("References = %v", env.References)
	}
	if len(env.Bcc) != 1 {
		t.Errorf("Bcc = %v, want kept", env.Bcc)
	}
}

func TestStripReply(t *testing.T) {
	tests := map[string]string{
		"Kick-off":          "Kick-off",
		"Re: Kick-off":      "Kick-off",
		"RE:re: Kick-off ":  "Kick-off",
		"Report: Re: later": "Report: Re: later",
	}
	for in, want := range tests {
		if got := StripReply(in); got != want {
			t.Errorf("StripReply(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPlainText(t *testing.T) {
	got := PlainText("<style>p{}</style><p>Hello &amp; welcome</p><p>Line<br>two</p>")
	want := "Hello & welcome\nLine\ntwo"
	if got != want {
		t.Errorf("PlainText() = %q, want %q", got, want)
	}
}

func TestRecipients(t *testing.T) {
	msg := model.Message{
		To:      []string{"a@example.com", " "},
		Options: model.SendOptions{CC: []string{"b@example.com"}, BCC: []string{"c@example.com"}},
	}
	if got := Recipients(msg); len(got) != 3 {
		t.Errorf("Recipients() = %v", got)
	}
}

func TestThreads(t *testing.T) {
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	envs := []Envelope{
		{MessageID: "a1@x", Subject: "Kickoff", Date: base},
		{MessageID: "a2@x", Subject: "Re: Kickoff", Date: base.Add(2 * time.Hour), InReplyTo: []string{"a1@x"}, References: []string{"a1@x"}, Cc: []string{"boss@example.com"}},
		{MessageID: "b1@x", Subject: "Other", Date: base.Add(time.Hour)},
		{MessageID: "", Subject: "no id", Date: base.Add(5 * time.Hour)},
	}

	got := Threads(envs, 0)
	if len(got) != 2 {
		t.Fatalf("Threads() returned %d threads, want 2", len(got))
	}
	if got[0].ID != "a1@x" || got[0].LastMessageID != "a2@x" {
		t.Errorf("first thread = %+v, want root a1@x with last message a2@x", got[0])
	}
	if len(got[0].CC) != 1 || got[0].CC[0] != "boss@example.com" {
		t.Errorf("first thread CC = %v, want [boss@example.com]", got[0].CC)
	}
	if got[1].ID != "b1@x" {
		t.Errorf("second thread = %q, want b1@x", got[1].ID)
	}

	if limited := Threads(envs, 1); len(limited) != 1 {
		t.Errorf("Threads(limit 1) returned %d, want 1", len(limited))
	}
}

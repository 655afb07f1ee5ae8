package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/dhcgn/mail-merge/address"
	"github.com/dhcgn/mail-merge/contacts"
	"github.com/dhcgn/mail-merge/model"
	"github.com/dhcgn/mail-merge/template"
)

const testSubjectPrefix = "[TEST] "

// TestSend personalizes the template for the first valid contact and sends
// it to to alone. Statuses are not touched.
func (r *Runner) TestSend(ctx context.Context, to string) error {
	tmpl, err := r.drafts.Resolve(ctx)
	if err != nil {
		r.prompt.Alert("Template problem", err.Error())
		return err
	}

	if strings.TrimSpace(to) == "" {
		to, err = r.prompt.Input("Test email", "Send the test email to:")
		if err != nil {
			return fmt.Errorf("read test address: %w", err)
		}
	}
	addr, _ := address.Extract(to)
	if addr == "" {
		r.prompt.Alert("Test email", fmt.Sprintf("%q is not a valid email address.", to))
		return fmt.Errorf("%w: %q", ErrInvalidTestAddress, to)
	}

	rows, err := r.store.ReadRows(ctx)
	if err != nil {
		return fmt.Errorf("read contacts: %w", err)
	}
	sample, ok := contacts.FirstValid(contacts.Load(rows))
	if !ok {
		r.prompt.Alert("No contacts", ErrNoValidContacts.Error())
		return ErrNoValidContacts
	}

	if res := template.Validate(tmpl.Subject, tmpl.Body, &sample); !res.Valid() {
		r.prompt.Alert("Template errors", res.ErrorMessage())
		return fmt.Errorf("%w: %s", ErrTemplateInvalid, strings.Join(res.Errors, "; "))
	}

	msg := r.buildMessage(tmpl, sample)
	msg.To = []string{addr}
	msg.Subject = testSubjectPrefix + msg.Subject
	msg.Options.CC = nil
	msg.Options.BCC = nil

	ok, err = r.prompt.Confirm("Test email", fmt.Sprintf("Send %q, personalized for row %d, to %s?", msg.Subject, sample.Row, addr))
	if err != nil {
		return fmt.Errorf("confirm test send: %w", err)
	}
	if !ok {
		return ErrCancelled
	}

	if err := r.gw.Send(ctx, msg); err != nil {
		r.prompt.Alert("Test email", "Sending failed: "+err.Error())
		return fmt.Errorf("test send: %w", err)
	}
	r.logger.Info("test email sent", "to", addr, "row", sample.Row, "subject", msg.Subject)
	r.prompt.Alert("Test email", "Sent to "+addr)
	return nil
}

// Validate resolves the template and checks it against the first valid
// contact without sending anything.
func (r *Runner) Validate(ctx context.Context) (template.Result, error) {
	tmpl, err := r.drafts.Resolve(ctx)
	if err != nil {
		return template.Result{}, err
	}
	rows, err := r.store.ReadRows(ctx)
	if err != nil {
		return template.Result{}, fmt.Errorf("read contacts: %w", err)
	}

	var sample *model.Contact
	if c, ok := contacts.FirstValid(contacts.Load(rows)); ok {
		sample = &c
	}
	res := template.Validate(tmpl.Subject, tmpl.Body, sample)
	if tmpl.Reply() && strings.TrimSpace(tmpl.OriginalSubject) == "" {
		res.Errors = append(res.Errors, ErrReplySubjectMissing.Error())
	}
	return res, nil
}

// Reset clears every status cell after confirmation.
func (r *Runner) Reset(ctx context.Context) error {
	ok, err := r.prompt.Confirm("Reset statuses", "Clear the status of every contact? The next run sends to everyone again.")
	if err != nil {
		return fmt.Errorf("confirm reset: %w", err)
	}
	if !ok {
		return ErrCancelled
	}
	if err := r.store.ClearStatuses(ctx); err != nil {
		return fmt.Errorf("clear statuses: %w", err)
	}
	if err := r.store.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	r.logger.Info("statuses cleared")
	return nil
}

package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dhcgn/mail-merge/address"
	"github.com/dhcgn/mail-merge/gateway"
	"github.com/dhcgn/mail-merge/model"
	"github.com/dhcgn/mail-merge/thread"
)

const verifyLimit = 5

// result is the decision for one contact.
type result struct {
	kind   model.StatusKind
	detail string
	cause  error
	// abort is set when the batch must stop after this contact.
	abort error
	// touched reports whether the gateway was called, which is what pacing
	// is for.
	touched   bool
	preflight time.Duration
}

func (r *Runner) process(ctx context.Context, b *batch, c model.Contact) result {
	if !c.HasEmail() {
		return result{kind: model.StatusInvalidEmail, detail: c.RawEmail}
	}
	if row, ok := b.previous.Row(c.Email); ok {
		return result{kind: model.StatusDuplicateCrossRun, detail: fmt.Sprintf("sent in row %d", row)}
	}
	if row, ok := b.seen.Row(c.Email); ok {
		return result{kind: model.StatusDuplicateInRun, detail: fmt.Sprintf("same address as row %d", row)}
	}

	msg := r.buildMessage(b.tmpl, c)

	var res result
	if b.tmpl.Reply() {
		res = r.reply(ctx, b, c, msg)
	} else {
		res = r.send(ctx, b, c, msg)
	}
	if res.kind.Success() {
		b.seen.Add(c.Email, c.Row)
	}
	return res
}

// buildMessage personalizes the template for c.
func (r *Runner) buildMessage(tmpl model.Template, c model.Contact) model.Message {
	to := []string{c.Email}
	to = append(to, address.FindAll(tmpl.AdditionalTo)...)
	return model.Message{
		To:      to,
		Subject: r.renderer.Subject(tmpl.Subject, c),
		Options: model.SendOptions{
			HTMLBody:     r.renderer.Body(tmpl.Body, c),
			SenderName:   tmpl.SenderName,
			CC:           address.FindAll(tmpl.CC),
			BCC:          address.FindAll(tmpl.BCC),
			Attachments:  tmpl.Attachments,
			InlineImages: tmpl.InlineImages,
		},
	}
}

func (r *Runner) send(ctx context.Context, b *batch, c model.Contact, msg model.Message) result {
	res := result{touched: true}

	if !b.fresh && needsPreflight(c.StatusKind()) {
		start := r.clock.Now()
		found, err := r.alreadySent(ctx, c.Email, msg.Subject)
		res.preflight = r.clock.Now().Sub(start)
		if err != nil {
			b.logger.Warn("preflight search failed, sending", "row", c.Row, "email", c.Email, "err", err)
		}
		if found {
			res.kind = model.StatusSentVerifiedPrior
			res.detail = multiEmailDetail(c)
			return res
		}
	}

	r.markSending(ctx, b, c)

	if err := r.gw.Send(ctx, msg); err != nil {
		found, verr := r.alreadySent(context.WithoutCancel(ctx), c.Email, msg.Subject)
		if verr != nil {
			b.logger.Warn("verify search failed", "row", c.Row, "email", c.Email, "err", verr)
		}
		if found {
			b.logger.Warn("send reported an error but the message is in sent mail", "row", c.Row, "email", c.Email, "err", err)
			res.kind = model.StatusSentVerifiedAfterError
			res.detail = multiEmailDetail(c)
			return res
		}
		res.kind = model.StatusFailed
		res.detail = err.Error()
		res.cause = err
		res.abort = ErrSendFailed
		if ctx.Err() != nil {
			res.abort = ErrCancelled
		}
		return res
	}

	res.kind = model.StatusSent
	if c.MultiEmail {
		res.kind = model.StatusSentMultiEmail
		res.detail = fmt.Sprintf("sent to %s only", c.Email)
	}
	return res
}

// multiEmailDetail marks a verified send from a cell that held several
// addresses. The verified kinds have no multi-email variant, so the detail
// carries the marker.
func multiEmailDetail(c model.Contact) string {
	if !c.MultiEmail {
		return ""
	}
	return fmt.Sprintf("multiple emails in cell, sent to %s only", c.Email)
}

func (r *Runner) reply(ctx context.Context, b *batch, c model.Contact, msg model.Message) result {
	res := result{touched: true}

	threads := r.threads.Find(ctx, thread.Params{
		OriginalSubject: b.tmpl.OriginalSubject,
		Mode:            b.tmpl.ReplyMode,
		Target:          c.Email,
		OriginalTo:      b.tmpl.OriginalTo,
	})
	switch {
	case len(threads) == 0:
		res.kind = model.StatusNoThread
		res.detail = fmt.Sprintf("no thread %q with %s", b.tmpl.OriginalSubject, c.Email)
		res.abort = ErrNoThread
		if ctx.Err() != nil {
			res.abort = ErrCancelled
			res.cause = ctx.Err()
		}
		return res
	case len(threads) > 1:
		res.kind = model.StatusAmbiguousThread
		res.detail = fmt.Sprintf("%d threads", len(threads))
		return res
	}

	t := threads[0]
	if b.tmpl.IncludeRecipients {
		msg.Options.CC = mergeAddresses(msg.Options.CC, t.CC, msg.To)
		msg.Options.BCC = mergeAddresses(msg.Options.BCC, t.BCC, msg.To)
	}

	r.markSending(ctx, b, c)

	if err := r.gw.Reply(ctx, t, msg); err != nil {
		res.kind = model.StatusReplyFailed
		res.detail = err.Error()
		res.cause = err
		res.abort = ErrReplyFailed
		if ctx.Err() != nil {
			res.abort = ErrCancelled
		}
		return res
	}
	res.kind = model.StatusReplySent
	return res
}

// markSending leaves a trace in the row before the gateway is called so an
// interrupted run is resumed with a preflight search.
func (r *Runner) markSending(ctx context.Context, b *batch, c model.Contact) {
	if err := r.writer.Write(context.WithoutCancel(ctx), c.Row, model.StatusSending, ""); err != nil {
		b.logger.Warn("could not mark row as sending", "row", c.Row, "err", err)
	}
}

// alreadySent searches sent mail for a message with subject to addr inside
// the verify window. A failed search is inconclusive and never counts as
// found.
func (r *Runner) alreadySent(ctx context.Context, addr, subject string) (bool, error) {
	q := gateway.Query{
		Mailbox:    gateway.MailboxSent,
		Subject:    subject,
		Predicates: []gateway.Predicate{gateway.Only(gateway.FieldTo, addr)},
		Since:      r.clock.Now().Add(-r.opts.VerifyWindow),
	}
	threads, err := r.gw.Search(ctx, q, verifyLimit)
	if err != nil {
		return false, err
	}
	return len(threads) > 0, nil
}

// needsPreflight reports whether a row of a resumed run may hide a send that
// was never recorded.
func needsPreflight(kind model.StatusKind) bool {
	switch kind {
	case model.StatusNone, model.StatusUnknown, model.StatusSending, model.StatusFailed, model.StatusReplyFailed:
		return true
	}
	return false
}

// mergeAddresses appends extra to base, skipping addresses already present in
// base or exclude.
func mergeAddresses(base, extra, exclude []string) []string {
	seen := make(map[string]bool, len(base)+len(exclude))
	for _, a := range exclude {
		seen[address.Key(a)] = true
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, a := range list {
			k := address.Key(a)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, strings.TrimSpace(a))
		}
	}
	return out
}

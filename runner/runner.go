// Package runner drives a send batch: it turns the contact table and the
// resolved template into send, skip and reply decisions and records each
// outcome in the table as it goes.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dhcgn/mail-merge/clock"
	"github.com/dhcgn/mail-merge/contacts"
	"github.com/dhcgn/mail-merge/draft"
	"github.com/dhcgn/mail-merge/gateway"
	"github.com/dhcgn/mail-merge/model"
	"github.com/dhcgn/mail-merge/prompt"
	"github.com/dhcgn/mail-merge/state"
	"github.com/dhcgn/mail-merge/stats"
	"github.com/dhcgn/mail-merge/store"
	"github.com/dhcgn/mail-merge/template"
	"github.com/dhcgn/mail-merge/thread"
)

const (
	DefaultInterval     = time.Second
	DefaultVerifyWindow = 72 * time.Hour
	maxDetailLength     = 200
)

// Options tunes a Runner.
type Options struct {
	// Interval is the pause between contacts that touched the gateway.
	Interval time.Duration
	// VerifyWindow bounds preflight and post-error searches.
	VerifyWindow time.Duration
	// ThreadWindow bounds reply-mode thread searches.
	ThreadWindow time.Duration
	Cache        draft.CacheConfig
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Store    store.Store
	Template store.TemplateSource
	Gateway  gateway.Gateway
	Prompt   prompt.Prompter
	Clock    clock.Clock
	Stream   *stats.Stream
	Logger   *slog.Logger
	// StatusWriter overrides the default retrying writer around Store.
	StatusWriter *store.StatusWriter
}

type Runner struct {
	opts     Options
	store    store.Store
	writer   *store.StatusWriter
	drafts   *draft.Resolver
	threads  *thread.Resolver
	gw       gateway.Gateway
	prompt   prompt.Prompter
	clock    clock.Clock
	renderer *template.Renderer
	stream   *stats.Stream
	logger   *slog.Logger
}

func New(deps Deps, opts Options) *Runner {
	if opts.Interval < 0 {
		opts.Interval = 0
	}
	if opts.VerifyWindow <= 0 {
		opts.VerifyWindow = DefaultVerifyWindow
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Stream == nil {
		deps.Stream = stats.NewStream()
	}
	if deps.Prompt == nil {
		deps.Prompt = prompt.Auto{Logger: deps.Logger}
	}
	writer := deps.StatusWriter
	if writer == nil {
		writer = store.NewStatusWriter(deps.Store, deps.Clock, deps.Logger)
	}

	cache := draft.NewCache(deps.Gateway, deps.Clock, opts.Cache, deps.Logger)
	return &Runner{
		opts:     opts,
		store:    deps.Store,
		writer:   writer,
		drafts:   draft.NewResolver(deps.Template, cache, deps.Logger),
		threads:  thread.NewResolver(deps.Gateway, deps.Clock, opts.ThreadWindow, deps.Logger),
		gw:       deps.Gateway,
		prompt:   deps.Prompt,
		clock:    deps.Clock,
		renderer: template.NewRenderer(),
		stream:   deps.Stream,
		logger:   deps.Logger,
	}
}

// batch is the state of one Run.
type batch struct {
	id        string
	logger    *slog.Logger
	tmpl      model.Template
	fresh     bool
	previous  *state.AddressSet
	seen      *state.AddressSet
	collector *stats.Collector
}

// Run sends the batch. Pre-batch problems are returned before any row is
// touched; an *AbortError means the batch stopped at one contact.
func (r *Runner) Run(ctx context.Context) (stats.Summary, error) {
	b := &batch{
		id:        uuid.NewString(),
		previous:  state.NewAddressSet(),
		seen:      state.NewAddressSet(),
		collector: stats.NewCollector(),
	}
	b.logger = r.logger.With("run", b.id)

	tmpl, list, err := r.prepare(ctx)
	if err != nil {
		return stats.Summary{}, err
	}
	b.tmpl = tmpl

	sum := contacts.Summarize(list)
	if sum.Pending == 0 {
		r.prompt.Alert("Nothing to send", fmt.Sprintf("All %d contacts already have a success status.", sum.Total))
		return stats.Summary{}, nil
	}

	if err := r.checkTemplate(tmpl, list); err != nil {
		return stats.Summary{}, err
	}

	ok, err := r.prompt.Confirm("Send batch", confirmText(tmpl, sum))
	if err != nil {
		return stats.Summary{}, fmt.Errorf("confirm batch: %w", err)
	}
	if !ok {
		return stats.Summary{}, ErrCancelled
	}

	b.fresh = contacts.FreshRun(list)
	var pending []model.Contact
	for _, c := range list {
		if c.StatusKind().Success() {
			b.previous.Add(c.Email, c.Row)
			continue
		}
		pending = append(pending, c)
	}

	b.logger.Info("batch started",
		"gateway", r.gw.Name(),
		"subject", tmpl.Subject,
		"replyMode", tmpl.ReplyMode.String(),
		"pending", len(pending),
		"alreadySent", b.previous.Len(),
		"freshRun", b.fresh,
	)
	r.publish(b, stats.Event{Type: stats.EventTypeStarted, Pending: len(pending)})

	for i, c := range pending {
		if err := ctx.Err(); err != nil {
			abort := &AbortError{Reason: ErrCancelled, Cause: err, Row: c.Row, Email: c.Email}
			return r.stop(b, abort)
		}

		res := r.process(ctx, b, c)
		r.record(ctx, b, c, res)

		if res.abort != nil {
			return r.stop(b, &AbortError{Reason: res.abort, Cause: res.cause, Row: c.Row, Email: c.Email})
		}

		if !res.touched || i == len(pending)-1 {
			continue
		}
		if wait := r.opts.Interval - res.preflight; wait > 0 {
			if err := r.clock.Sleep(ctx, wait); err != nil {
				next := pending[i+1]
				return r.stop(b, &AbortError{Reason: ErrCancelled, Cause: err, Row: next.Row, Email: next.Email})
			}
		}
	}

	summary := b.collector.Snapshot()
	r.publish(b, stats.Event{Type: stats.EventTypeFinished})
	r.prompt.Alert("Batch complete", completionText(summary))
	return summary, nil
}

// prepare resolves the template and loads the contacts.
func (r *Runner) prepare(ctx context.Context) (model.Template, []model.Contact, error) {
	tmpl, err := r.drafts.Resolve(ctx)
	if err != nil {
		r.prompt.Alert("Template problem", err.Error())
		return model.Template{}, nil, err
	}

	rows, err := r.store.ReadRows(ctx)
	if err != nil {
		return model.Template{}, nil, fmt.Errorf("read contacts: %w", err)
	}
	list := contacts.Load(rows)
	sum := contacts.Summarize(list)
	if sum.Valid == 0 && sum.AlreadySent == 0 {
		r.prompt.Alert("No contacts", ErrNoValidContacts.Error())
		return model.Template{}, nil, ErrNoValidContacts
	}

	if tmpl.Reply() && strings.TrimSpace(tmpl.OriginalSubject) == "" {
		r.prompt.Alert("Reply mode", ErrReplySubjectMissing.Error())
		return model.Template{}, nil, ErrReplySubjectMissing
	}
	return tmpl, list, nil
}

// checkTemplate blocks on hard errors and asks before continuing with
// warnings.
func (r *Runner) checkTemplate(tmpl model.Template, list []model.Contact) error {
	var sample *model.Contact
	if c, ok := contacts.FirstValid(list); ok {
		sample = &c
	}
	res := template.Validate(tmpl.Subject, tmpl.Body, sample)
	if !res.Valid() {
		r.prompt.Alert("Template errors", res.ErrorMessage())
		return fmt.Errorf("%w: %s", ErrTemplateInvalid, strings.Join(res.Errors, "; "))
	}
	if res.HasWarnings() {
		ok, err := r.prompt.Confirm("Template warnings", res.WarningMessage())
		if err != nil {
			return fmt.Errorf("confirm warnings: %w", err)
		}
		if !ok {
			return ErrWarningsDeclined
		}
	}
	return nil
}

// record writes the outcome of one contact and publishes it. A status that
// cannot be written is logged; the send already happened and the batch goes
// on.
func (r *Runner) record(ctx context.Context, b *batch, c model.Contact, res result) {
	detail := truncate(res.detail, maxDetailLength)
	if err := r.writer.Write(context.WithoutCancel(ctx), c.Row, res.kind, detail); err != nil {
		b.logger.Error("status write failed", "row", c.Row, "status", res.kind.Format(detail), "err", err)
	}

	level := slog.LevelInfo
	if res.kind.Failure() {
		level = slog.LevelError
	}
	b.logger.Log(ctx, level, "contact processed", "row", c.Row, "email", c.Email, "status", res.kind.String(), "detail", detail)

	r.publish(b, stats.Event{
		Type:   stats.EventTypeOutcome,
		Row:    c.Row,
		Email:  c.Email,
		Status: res.kind,
		Detail: detail,
		Err:    res.cause,
	})
}

func (r *Runner) stop(b *batch, abort *AbortError) (stats.Summary, error) {
	r.publish(b, stats.Event{Type: stats.EventTypeAborted, Row: abort.Row, Email: abort.Email, Err: abort})
	summary := b.collector.Snapshot()
	abort.Summary = summary
	r.prompt.Alert("Batch stopped", fmt.Sprintf("%s\n\nSent so far: %d\nDuplicates skipped: %d\nRemaining rows were not touched; run again to resume.",
		abort.Error(), summary.Successes(), summary.Duplicates()))
	return summary, abort
}

func (r *Runner) publish(b *batch, evt stats.Event) {
	evt.RunID = b.id
	evt.Time = r.clock.Now()
	b.collector.Handle(evt)
	r.stream.Publish(evt)
}

func confirmText(tmpl model.Template, sum contacts.Summary) string {
	var sb strings.Builder
	mode := "new emails"
	if tmpl.Reply() {
		mode = fmt.Sprintf("replies (%s) to %q", tmpl.ReplyMode, tmpl.OriginalSubject)
	}
	fmt.Fprintf(&sb, "Send %s with subject %q to %d contacts?\n", mode, tmpl.Subject, sum.Pending)
	if sum.AlreadySent > 0 {
		fmt.Fprintf(&sb, "%d contacts already sent will be skipped.\n", sum.AlreadySent)
	}
	if sum.Invalid > 0 {
		fmt.Fprintf(&sb, "%d contacts have no valid email and will be marked.\n", sum.Invalid)
	}
	if sum.MultiEmail > 0 {
		fmt.Fprintf(&sb, "%d contacts list several emails; only the first is used.\n", sum.MultiEmail)
	}
	if len(tmpl.Attachments) > 0 {
		fmt.Fprintf(&sb, "Attachments: %d\n", len(tmpl.Attachments))
	}
	return strings.TrimSpace(sb.String())
}

func completionText(s stats.Summary) string {
	return fmt.Sprintf("Sent: %d\nDuplicates skipped: %d (in batch %d, previously sent %d)\nInvalid emails: %d\nSkipped, several threads: %d",
		s.Successes(), s.Duplicates(), s.DuplicatesInRun, s.DuplicatesCrossRun, s.Invalid, s.Ambiguous)
}

// truncate collapses s to one line and keeps at most n runes.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := 0
	for i := range s {
		if runes == n {
			return s[:i] + "…"
		}
		runes++
	}
	return s
}

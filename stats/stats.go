// Package stats defines the events a send run publishes and aggregates them
// into a summary.
package stats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dhcgn/mail-merge/model"
)

type EventType string

const (
	// EventTypeStarted carries the number of pending contacts in Pending.
	EventTypeStarted EventType = "started"
	// EventTypeOutcome reports the final status of one contact.
	EventTypeOutcome EventType = "outcome"
	// EventTypeAborted is published once when the batch stops early.
	EventTypeAborted EventType = "aborted"
	EventTypeFinished EventType = "finished"
)

type Event struct {
	Type    EventType
	RunID   string
	Row     int
	Email   string
	Status  model.StatusKind
	Detail  string
	Err     error
	Pending int
	Time    time.Time
}

// Summary counts outcomes of one run.
type Summary struct {
	Pending            int
	Sent               int
	VerifiedPrior      int
	VerifiedAfterError int
	MultiEmail         int
	Replied            int
	Invalid            int
	DuplicatesInRun    int
	DuplicatesCrossRun int
	Ambiguous          int
	Failed             int
	Aborted            bool
	LastError          error
}

// Successes counts every contact that ended in a success status.
func (s Summary) Successes() int {
	return s.Sent + s.VerifiedPrior + s.VerifiedAfterError + s.MultiEmail + s.Replied
}

// Duplicates counts in-run and cross-run duplicates together.
func (s Summary) Duplicates() int {
	return s.DuplicatesInRun + s.DuplicatesCrossRun
}

// Processed counts contacts that received a final status.
func (s Summary) Processed() int {
	return s.Successes() + s.Duplicates() + s.Invalid + s.Ambiguous + s.Failed
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"pending", s.Pending,
		"sent", s.Sent,
		"verifiedPrior", s.VerifiedPrior,
		"verifiedAfterError", s.VerifiedAfterError,
		"multiEmail", s.MultiEmail,
		"replied", s.Replied,
		"invalid", s.Invalid,
		"duplicatesInRun", s.DuplicatesInRun,
		"duplicatesCrossRun", s.DuplicatesCrossRun,
		"ambiguous", s.Ambiguous,
		"failed", s.Failed,
	}
	if s.Aborted {
		attrs = append(attrs, "aborted", true)
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// Collector folds events into a Summary.
type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

// Handle applies one event.
func (c *Collector) Handle(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeStarted:
		c.summary.Pending = evt.Pending
	case EventTypeAborted:
		c.summary.Aborted = true
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	case EventTypeOutcome:
		c.applyOutcome(evt)
	}
}

func (c *Collector) applyOutcome(evt Event) {
	switch evt.Status {
	case model.StatusSent:
		c.summary.Sent++
	case model.StatusSentVerifiedPrior:
		c.summary.VerifiedPrior++
	case model.StatusSentVerifiedAfterError:
		c.summary.VerifiedAfterError++
	case model.StatusSentMultiEmail:
		c.summary.MultiEmail++
	case model.StatusReplySent:
		c.summary.Replied++
	case model.StatusInvalidEmail:
		c.summary.Invalid++
	case model.StatusDuplicateInRun:
		c.summary.DuplicatesInRun++
	case model.StatusDuplicateCrossRun:
		c.summary.DuplicatesCrossRun++
	case model.StatusAmbiguousThread:
		c.summary.Ambiguous++
	case model.StatusFailed, model.StatusReplyFailed, model.StatusNoThread:
		c.summary.Failed++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

// Stream delivers events synchronously to named subscribers in subscription
// order.
type Stream struct {
	mu   sync.Mutex
	subs []subscriber
}

type subscriber struct {
	name string
	fn   func(Event)
}

func NewStream() *Stream {
	return &Stream{}
}

func (s *Stream) Subscribe(name string, fn func(Event)) {
	s.mu.Lock()
	s.subs = append(s.subs, subscriber{name: name, fn: fn})
	s.mu.Unlock()
}

func (s *Stream) Publish(evt Event) {
	s.mu.Lock()
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.fn(evt)
	}
}

// Reporter logs the run summary when the run finishes or aborts.
type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream *Stream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.Subscribe("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(evt Event) {
	r.collector.Handle(evt)
	if r.logger == nil {
		return
	}
	switch evt.Type {
	case EventTypeStarted:
		r.started = evt.Time
	case EventTypeFinished:
		attrs := append(r.collector.Snapshot().LogAttrs(), "duration", evt.Time.Sub(r.started))
		r.logger.Info("send summary", attrs...)
	case EventTypeAborted:
		attrs := append(r.collector.Snapshot().LogAttrs(), "duration", evt.Time.Sub(r.started), "row", evt.Row)
		r.logger.Error("send aborted", attrs...)
	}
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

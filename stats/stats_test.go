package stats

import (
	"errors"
	"testing"

	"github.com/dhcgn/mail-merge/model"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	boom := errors.New("boom")

	events := []Event{
		{Type: EventTypeStarted, Pending: 9},
		{Type: EventTypeOutcome, Status: model.StatusSent},
		{Type: EventTypeOutcome, Status: model.StatusSentMultiEmail},
		{Type: EventTypeOutcome, Status: model.StatusSentVerifiedPrior},
		{Type: EventTypeOutcome, Status: model.StatusSentVerifiedAfterError},
		{Type: EventTypeOutcome, Status: model.StatusReplySent},
		{Type: EventTypeOutcome, Status: model.StatusDuplicateInRun},
		{Type: EventTypeOutcome, Status: model.StatusDuplicateCrossRun},
		{Type: EventTypeOutcome, Status: model.StatusInvalidEmail},
		{Type: EventTypeOutcome, Status: model.StatusFailed, Err: boom},
		{Type: EventTypeAborted, Err: boom},
	}

	for _, evt := range events {
		c.Handle(evt)
	}

	s := c.Snapshot()
	if s.Pending != 9 {
		t.Errorf("Pending = %d, want 9", s.Pending)
	}
	if s.Successes() != 5 {
		t.Errorf("Successes() = %d, want 5", s.Successes())
	}
	if s.Duplicates() != 2 {
		t.Errorf("Duplicates() = %d, want 2", s.Duplicates())
	}
	if s.Processed() != 9 {
		t.Errorf("Processed() = %d, want 9", s.Processed())
	}
	if !s.Aborted || !errors.Is(s.LastError, boom) {
		t.Errorf("Aborted = %v, LastError = %v", s.Aborted, s.LastError)
	}
}

func TestStreamOrder(t *testing.T) {
	stream := NewStream()
	var order []string
	stream.Subscribe("a", func(Event) { order = append(order, "a") })
	stream.Subscribe("b", func(Event) { order = append(order, "b") })

	stream.Publish(Event{Type: EventTypeFinished})

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("delivery order = %v, want [a b]", order)
	}
}

func TestReporterSummary(t *testing.T) {
	stream := NewStream()
	r := NewReporter(stream, nil)
	stream.Publish(Event{Type: EventTypeOutcome, Status: model.StatusSent})
	stream.Publish(Event{Type: EventTypeFinished})

	if got := r.Summary().Sent; got != 1 {
		t.Errorf("Summary().Sent = %d, want 1", got)
	}
}

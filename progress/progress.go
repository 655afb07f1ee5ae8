// Package progress renders a live pterm progress bar and a final summary for
// a send run.
package progress

import (
	"strconv"
	"sync"

	"github.com/pterm/pterm"

	"github.com/dhcgn/mail-merge/model"
	"github.com/dhcgn/mail-merge/stats"
)

// Bar tracks contacts processed in a run.
type Bar struct {
	pb        *pterm.ProgressbarPrinter
	total     int
	collector *stats.Collector
	mu        sync.Mutex
	enabled   bool
}

// New creates a progress bar if logLevel is "info". Other levels print log
// lines that would tear the bar apart.
func New(logLevel string) *Bar {
	return &Bar{
		enabled:   logLevel == "info",
		collector: stats.NewCollector(),
	}
}

// Attach subscribes the bar to stream.
func (b *Bar) Attach(stream *stats.Stream) {
	if !b.enabled {
		return
	}
	stream.Subscribe("progress-bar", b.Update)
}

// Update advances the bar for one event.
func (b *Bar) Update(evt stats.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.collector.Handle(evt)

	switch evt.Type {
	case stats.EventTypeStarted:
		b.start(evt.Pending)
	case stats.EventTypeOutcome:
		if b.pb == nil {
			return
		}
		b.pb.Increment()
		if evt.Email != "" {
			title := "Row " + strconv.Itoa(evt.Row) + ": " + evt.Email
			if len(title) > 48 {
				title = title[:45] + "..."
			}
			b.pb.UpdateTitle(title)
		}
		if evt.Status.Failure() && evt.Err != nil {
			pterm.Error.Printf("Row %d (%s): %v\n", evt.Row, evt.Email, evt.Err)
		}
		if evt.Status == model.StatusAmbiguousThread {
			pterm.Warning.Printf("Row %d (%s): %s\n", evt.Row, evt.Email, evt.Detail)
		}
	case stats.EventTypeFinished, stats.EventTypeAborted:
		b.stop(evt.Type == stats.EventTypeAborted)
	}
}

func (b *Bar) start(total int) {
	b.total = total
	pterm.Info.Printf("Contacts to process: %d\n", total)
	if total == 0 {
		return
	}
	pb, _ := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle("Sending").
		Start()
	b.pb = pb
}

func (b *Bar) stop(aborted bool) {
	if b.pb != nil {
		if !aborted && b.pb.Current < b.total {
			b.pb.Current = b.total
		}
		b.pb.Stop()
		b.pb = nil
	}
	printSummary(b.collector.Snapshot())
}

func printSummary(s stats.Summary) {
	pterm.Println()
	pterm.DefaultSection.Println("Summary")
	pterm.Info.Printf("Sent: %d\n", s.Successes())
	if s.VerifiedPrior > 0 {
		pterm.Info.Printf("  verified from an earlier run: %d\n", s.VerifiedPrior)
	}
	if s.VerifiedAfterError > 0 {
		pterm.Info.Printf("  verified after a send error: %d\n", s.VerifiedAfterError)
	}
	if s.MultiEmail > 0 {
		pterm.Warning.Printf("  rows with several addresses (first used): %d\n", s.MultiEmail)
	}
	if s.Replied > 0 {
		pterm.Info.Printf("  replies: %d\n", s.Replied)
	}
	pterm.Info.Printf("Duplicates skipped: %d (in this batch %d, previously sent %d)\n",
		s.Duplicates(), s.DuplicatesInRun, s.DuplicatesCrossRun)
	pterm.Info.Printf("Invalid emails: %d\n", s.Invalid)
	if s.Ambiguous > 0 {
		pterm.Warning.Printf("Skipped, several threads found: %d\n", s.Ambiguous)
	}
	if s.Failed > 0 || s.Aborted {
		pterm.Error.Printf("Failed: %d\n", s.Failed)
	}
	if s.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", s.LastError)
	}
	if !s.Aborted {
		pterm.Success.Println("Batch complete!")
	}
}

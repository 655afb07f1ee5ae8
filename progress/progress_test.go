package progress

import (
	"testing"

	"github.com/dhcgn/mail-merge/model"
	"github.com/dhcgn/mail-merge/stats"
)

func TestBarDisabledOutsideInfo(t *testing.T) {
	stream := stats.NewStream()
	called := 0
	stream.Subscribe("probe", func(stats.Event) { called++ })

	New("debug").Attach(stream)
	stream.Publish(stats.Event{Type: stats.EventTypeOutcome, Status: model.StatusSent})

	if called != 1 {
		t.Errorf("subscribers called %d times, want only the probe", called)
	}
}

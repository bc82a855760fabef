package watcher

import (
	"context"
	"time"
)

// debouncer collapses bursts of change events into single rebuild
// requests. Every incoming event resets the quiet-period timer; only when
// the timer elapses with no further events is exactly one request emitted.
// An unbroken stream of events defers the request indefinitely.
type debouncer struct {
	quiet    time.Duration
	events   chan ChangeEvent
	requests chan RebuildRequest
}

func newDebouncer(quiet time.Duration) *debouncer {
	return &debouncer{
		quiet:    quiet,
		events:   make(chan ChangeEvent, 256),
		requests: make(chan RebuildRequest, 1),
	}
}

func (d *debouncer) submit(event ChangeEvent) {
	select {
	case d.events <- event:
	default:
		// The event buffer is full. Dropping is safe: a rebuild request
		// is already pending and the dropped event carries no state the
		// rebuild would miss.
	}
}

// run owns the quiet-period timer. It is the single consumer of the event
// channel and the single producer of rebuild requests. A pending timer is
// abandoned, not flushed, on shutdown.
func (d *debouncer) run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var timerC <-chan time.Time
	coalesced := 0

	for {
		select {
		case <-ctx.Done():
			return

		case <-d.events:
			coalesced++
			if timerC != nil && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(d.quiet)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			req := RebuildRequest{BurstEndedAt: time.Now(), Events: coalesced}
			coalesced = 0
			select {
			case d.requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Package position publishes a live playback position for display.
package position

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/satindergrewal/tempo/internal/transport"
)

// DefaultInterval approximates one display frame.
const DefaultInterval = 16 * time.Millisecond

// Source is what the reporter reads. *transport.Transport satisfies it.
type Source interface {
	State() transport.State
	Snapshot() (st transport.State, pos, total time.Duration)
	Subscribe(fn func(transport.State)) func()
}

// Report is one display update.
type Report struct {
	State      string  `json:"state"`
	PositionMs int64   `json:"positionMs"`
	DurationMs int64   `json:"durationMs"`
	Elapsed    string  `json:"elapsed"`
	Total      string  `json:"total"`
	Progress   float64 `json:"progress"`
}

// Reporter republishes the source position every interval while playing
// and once per transition while stopped.
type Reporter struct {
	src      Source
	clock    clockwork.Clock
	interval time.Duration
	wake     chan struct{}

	mu   sync.Mutex
	last Report
	subs map[int]func(Report)
	next int
}

// NewReporter creates a reporter for src. Call Run to start it.
func NewReporter(src Source, clk clockwork.Clock, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		src:      src,
		clock:    clk,
		interval: interval,
		wake:     make(chan struct{}, 1),
		subs:     make(map[int]func(Report)),
	}
}

// Subscribe registers fn for every published report. Reports are delivered
// on the Run goroutine. The returned function removes fn.
func (r *Reporter) Subscribe(fn func(Report)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// Last returns the most recently published report.
func (r *Reporter) Last() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Snapshot builds a report from the source's current values.
func (r *Reporter) Snapshot() Report {
	st, pos, total := r.src.Snapshot()
	return Report{
		State:      st.Name(),
		PositionMs: pos.Milliseconds(),
		DurationMs: total.Milliseconds(),
		Elapsed:    Format(pos),
		Total:      Format(total),
		Progress:   Progress(pos, total),
	}
}

// Run publishes until ctx is cancelled. The ticker only exists while the
// source is playing.
func (r *Reporter) Run(ctx context.Context) {
	unsub := r.src.Subscribe(func(transport.State) {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	})
	defer unsub()

	for {
		r.publish()
		if _, playing := r.src.State().(transport.Playing); !playing {
			select {
			case <-ctx.Done():
				return
			case <-r.wake:
				continue
			}
		}
		if !r.tick(ctx) {
			return
		}
	}
}

// tick publishes on every interval until the source signals a transition
// (true) or ctx ends (false).
func (r *Reporter) tick(ctx context.Context) bool {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-r.wake:
			return true
		case <-ticker.Chan():
			r.publish()
		}
	}
}

func (r *Reporter) publish() {
	rep := r.Snapshot()
	r.mu.Lock()
	r.last = rep
	subs := make([]func(Report), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(rep)
	}
}

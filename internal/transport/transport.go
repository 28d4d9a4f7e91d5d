// Package transport owns playback state and drives the audio graph through
// play, pause, stop, seek and live settings changes without losing position.
package transport

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/satindergrewal/tempo/internal/audio"
	"github.com/satindergrewal/tempo/internal/graph"
	"github.com/satindergrewal/tempo/internal/settings"
)

// DefaultGrace is how long a replaced source keeps playing after a rebuild.
const DefaultGrace = 30 * time.Millisecond

var (
	// ErrNotReady is returned when no buffer is loaded. It is advisory;
	// the command had no effect.
	ErrNotReady = errors.New("no audio loaded")
	// ErrSeekWhilePlaying is returned by Seek outside the Stopped state.
	ErrSeekWhilePlaying = errors.New("seek is only supported while stopped")
)

// Transport is the playback state machine. All methods are safe for
// concurrent use; transitions are applied one at a time.
type Transport struct {
	builder *graph.Builder
	clock   clockwork.Clock
	grace   time.Duration

	mu       sync.Mutex
	buf      *audio.Buffer
	settings settings.Settings
	state    State
	retiring []*graph.Handle

	observers map[int]func(State)
	nextObs   int
}

// New creates a stopped transport with default settings.
func New(builder *graph.Builder, clk clockwork.Clock, grace time.Duration) *Transport {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Transport{
		builder:   builder,
		clock:     clk,
		grace:     grace,
		settings:  settings.Defaults(),
		state:     Stopped{},
		observers: make(map[int]func(State)),
	}
}

// Subscribe registers fn to be called after every state transition. The
// returned function removes it.
func (t *Transport) Subscribe(fn func(State)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.observers, id)
	}
}

// transition runs fn under the lock and, if it reports a change, notifies
// observers once the lock is released.
func (t *Transport) transition(fn func() (bool, error)) error {
	t.mu.Lock()
	changed, err := fn()
	st := t.state
	var obs []func(State)
	if changed {
		obs = make([]func(State), 0, len(t.observers))
		for _, o := range t.observers {
			obs = append(obs, o)
		}
	}
	t.mu.Unlock()

	for _, o := range obs {
		o(st)
	}
	return err
}

// Load replaces the audio buffer, tearing down any live graph and
// rewinding to Stopped(0). A nil buffer unloads.
func (t *Transport) Load(buf *audio.Buffer) {
	t.transition(func() (bool, error) {
		t.releaseAll()
		t.buf = buf
		t.state = Stopped{}
		if buf != nil {
			log.Printf("Loaded %s of audio", buf.Duration().Round(time.Millisecond))
		}
		return true, nil
	})
}

// Loaded reports whether a buffer is loaded.
func (t *Transport) Loaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf != nil
}

// Duration returns the loaded buffer's length, or 0.
func (t *Transport) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration()
}

func (t *Transport) duration() time.Duration {
	if t.buf == nil {
		return 0
	}
	return t.buf.Duration()
}

// State returns the current state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Settings returns the settings graphs are built with.
func (t *Transport) Settings() settings.Settings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings
}

// Position returns the current position clamped to the buffer.
func (t *Transport) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clamp(t.state.PositionAt(t.clock.Now()))
}

// Snapshot returns the state with its clamped position and the buffer
// duration, read together so a concurrent transition cannot tear them.
func (t *Transport) Snapshot() (State, time.Duration, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.clamp(t.state.PositionAt(t.clock.Now())), t.duration()
}

func (t *Transport) clamp(pos time.Duration) time.Duration {
	return max(0, min(pos, t.duration()))
}

// Play builds a graph at the current settings and starts it at the stored
// position. It does nothing if already playing and returns ErrNotReady
// with no buffer loaded.
func (t *Transport) Play() error {
	return t.transition(func() (bool, error) {
		st, ok := t.state.(Stopped)
		if !ok {
			return false, nil
		}
		if t.buf == nil {
			return false, ErrNotReady
		}

		pos := t.clamp(st.Position)
		s := t.settings
		h := t.builder.Build(t.buf, s.PlaybackRate, s.FilterType, s.ActiveFrequency())
		if err := h.Start(pos); err != nil {
			h.Release()
			return false, fmt.Errorf("start source: %w", err)
		}
		t.state = Playing{
			EffectiveStart: effectiveStart(t.clock.Now(), pos, s.PlaybackRate),
			Rate:           s.PlaybackRate,
			graph:          h,
		}
		return true, nil
	})
}

// Pause stops the live graph and stores the elapsed position. It does
// nothing while stopped.
func (t *Transport) Pause() {
	t.transition(func() (bool, error) {
		p, ok := t.state.(Playing)
		if !ok {
			return false, nil
		}
		pos := p.PositionAt(t.clock.Now())
		t.releaseAll()
		t.state = Stopped{Position: pos}
		return true, nil
	})
}

// Stop stops any live graph and rewinds to Stopped(0).
func (t *Transport) Stop() {
	t.transition(func() (bool, error) {
		t.releaseAll()
		t.state = Stopped{}
		return true, nil
	})
}

// Seek sets the stored position. Only supported while stopped.
func (t *Transport) Seek(pos time.Duration) error {
	return t.transition(func() (bool, error) {
		if _, ok := t.state.(Playing); ok {
			return false, ErrSeekWhilePlaying
		}
		if t.buf == nil {
			return false, ErrNotReady
		}
		t.state = Stopped{Position: t.clamp(pos)}
		return true, nil
	})
}

// SetPlaybackRate changes the rate, rebuilding the live graph at the
// current position when playing.
func (t *Transport) SetPlaybackRate(rate float64) error {
	s := t.Settings()
	s.PlaybackRate = rate
	return t.Apply(s)
}

// SetFilterType switches the filter stage. The frequency tuned for the
// new type is kept.
func (t *Transport) SetFilterType(ft settings.FilterType) error {
	s := t.Settings()
	s.FilterType = ft
	return t.Apply(s)
}

// SetFrequency tunes the active filter. Without a filter it does nothing.
func (t *Transport) SetFrequency(freq float64) error {
	return t.Apply(t.Settings().WithFrequency(freq))
}

// SetFilter switches the filter type and sets its frequency.
func (t *Transport) SetFilter(ft settings.FilterType, freq float64) error {
	s := t.Settings()
	s.FilterType = ft
	return t.Apply(s.WithFrequency(freq))
}

// Apply validates next, adopts it and rewires the live graph as Plan
// decides.
func (t *Transport) Apply(next settings.Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	return t.transition(func() (bool, error) {
		old := t.settings
		t.settings = next

		p, playing := t.state.(Playing)
		switch Plan(old, next, playing) {
		case Retune:
			p.graph.Retune(next.ActiveFrequency())
		case Reconnect:
			p.graph.Reconnect(next.FilterType, next.ActiveFrequency())
		case Rebuild:
			return t.rebuild(p, next)
		}
		return false, nil
	})
}

// rebuild hands playback over to a new graph at next's rate, starting it
// at the current position. The old graph fades out and is released after
// the grace delay.
func (t *Transport) rebuild(p Playing, next settings.Settings) (bool, error) {
	now := t.clock.Now()
	pos := t.clamp(p.PositionAt(now))

	h, err := t.builder.Handoff(p.graph, t.buf, next.PlaybackRate, next.FilterType, next.ActiveFrequency(), pos, t.grace)
	if err != nil {
		return false, fmt.Errorf("rebuild graph: %w", err)
	}

	old := p.graph
	t.retiring = append(t.retiring, old)
	t.clock.AfterFunc(t.grace, func() { t.retire(old) })

	t.state = Playing{
		EffectiveStart: effectiveStart(now, pos, next.PlaybackRate),
		Rate:           next.PlaybackRate,
		graph:          h,
	}
	return true, nil
}

// retire releases a handed-off graph if it is still pending.
func (t *Transport) retire(h *graph.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, r := range t.retiring {
		if r == h {
			t.retiring = append(t.retiring[:i], t.retiring[i+1:]...)
			break
		}
	}
	h.Release()
}

// Retiring returns how many handed-off graphs are still waiting for release.
func (t *Transport) Retiring() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.retiring)
}

// releaseAll releases the live graph and every retiring one.
func (t *Transport) releaseAll() {
	if p, ok := t.state.(Playing); ok {
		p.graph.Release()
	}
	for _, h := range t.retiring {
		h.Release()
	}
	t.retiring = nil
}

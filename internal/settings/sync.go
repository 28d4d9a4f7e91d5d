// Package settings holds playback settings and keeps them in step with an
// external store.
package settings

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultDebounce is the quiet period before a change is persisted.
const DefaultDebounce = 500 * time.Millisecond

// saveTimeout bounds a single background save.
const saveTimeout = 10 * time.Second

// Store loads and saves one user's settings.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}

// Synchronizer holds the in-memory settings and persists changes to a Store
// after a debounce window. At most one save is pending at a time.
type Synchronizer struct {
	store Store
	clock clockwork.Clock
	delay time.Duration

	mu       sync.Mutex
	current  Settings
	snapshot Settings // last value handed to a save
	pending  *Settings
	timer    clockwork.Timer
	dirty    bool // changed locally since construction
	closed   bool
}

// NewSynchronizer creates a Synchronizer starting from Defaults.
func NewSynchronizer(store Store, clk clockwork.Clock, delay time.Duration) *Synchronizer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Synchronizer{
		store:    store,
		clock:    clk,
		delay:    delay,
		current:  Defaults(),
		snapshot: Defaults(),
	}
}

// Load fetches settings from the store. Any failure, including invalid
// stored values, yields Defaults. The result becomes the in-memory value
// unless local changes were already made.
func (s *Synchronizer) Load(ctx context.Context) Settings {
	loaded := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		log.Printf("Settings changed before load finished, keeping in-memory values")
		return s.current
	}
	s.current = loaded
	s.snapshot = loaded
	return loaded
}

// Start loads in the background and calls onLoaded with the result when it
// was adopted. onLoaded is not called if local changes won.
func (s *Synchronizer) Start(ctx context.Context, onLoaded func(Settings)) {
	go func() {
		loaded := s.fetch(ctx)

		s.mu.Lock()
		if s.dirty || s.closed {
			s.mu.Unlock()
			log.Printf("Settings changed before load finished, keeping in-memory values")
			return
		}
		s.current = loaded
		s.snapshot = loaded
		s.mu.Unlock()

		if onLoaded != nil {
			onLoaded(loaded)
		}
	}()
}

func (s *Synchronizer) fetch(ctx context.Context) Settings {
	loaded, err := s.store.Load(ctx)
	if err != nil {
		log.Printf("Failed to load settings, using defaults: %v", err)
		return Defaults()
	}
	if err := loaded.Validate(); err != nil {
		log.Printf("Stored settings rejected, using defaults: %v", err)
		return Defaults()
	}
	return loaded
}

// Current returns the in-memory settings.
func (s *Synchronizer) Current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update records a change. A value equal to the current one changes
// nothing. If it differs from the last persisted snapshot, any pending save
// is cancelled and a new one is scheduled after the debounce delay.
func (s *Synchronizer) Update(next Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || next == s.current {
		return
	}
	s.current = next
	s.dirty = true
	if next == s.snapshot {
		return
	}
	s.snapshot = next
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = &next
	s.timer = s.clock.AfterFunc(s.delay, func() { s.fire(next) })
}

func (s *Synchronizer) fire(v Settings) {
	s.mu.Lock()
	if s.closed || s.pending == nil || *s.pending != v {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	s.save(ctx, v)
}

func (s *Synchronizer) save(ctx context.Context, v Settings) {
	if err := s.store.Save(ctx, v); err != nil {
		log.Printf("Settings save failed: %v", err)
		return
	}
	log.Printf("Settings saved (rate=%g filter=%s)", v.PlaybackRate, v.FilterType)
}

// Flush persists a pending change immediately instead of waiting for the timer.
func (s *Synchronizer) Flush(ctx context.Context) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	p := s.pending
	s.pending = nil
	s.mu.Unlock()

	if p != nil {
		s.save(ctx, *p)
	}
}

// Close cancels the pending save. Later updates are ignored.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

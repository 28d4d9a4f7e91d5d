// Package session keeps one live player per user. A session owns the
// player, a real-time renderer pulling from its audio context and the
// broadcaster feeding that user's HTTP and WebRTC streams.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/satindergrewal/tempo/internal/audio"
	"github.com/satindergrewal/tempo/internal/player"
	"github.com/satindergrewal/tempo/internal/stream"
	"github.com/satindergrewal/tempo/internal/transport"
	"github.com/satindergrewal/tempo/internal/userdata"
)

// DefaultIdleTimeout is how long an unused session is kept.
const DefaultIdleTimeout = 30 * time.Minute

// ErrClosed is returned once the manager has shut down.
var ErrClosed = errors.New("session manager closed")

// Config tunes a Manager.
type Config struct {
	Player      player.Config
	IdleTimeout time.Duration
	// NoRenderer skips the real-time renderer. Tests and local output
	// sinks that pull from the context themselves set it.
	NoRenderer bool
}

// Session is one user's playback unit.
type Session struct {
	userID      string
	player      *player.Player
	broadcaster *stream.Broadcaster

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// guarded by Manager.mu
	conns      int
	lastActive time.Time
}

// UserID returns the owner of the session.
func (s *Session) UserID() string { return s.userID }

// Player returns the session's player.
func (s *Session) Player() *player.Player { return s.player }

// Broadcaster returns the fan-out for the session's rendered audio.
func (s *Session) Broadcaster() *stream.Broadcaster { return s.broadcaster }

// Manager creates sessions on first use and closes idle ones.
type Manager struct {
	cfg   Config
	store *userdata.Store
	clock clockwork.Clock

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a manager persisting settings to store.
func NewManager(cfg Config, store *userdata.Store, clk clockwork.Clock) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		clock:    clk,
		sessions: make(map[string]*Session),
	}
}

// Get returns the user's session, starting it if needed.
func (m *Manager) Get(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(userID)
}

func (m *Manager) get(userID string) (*Session, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if !userdata.ValidID(userID) {
		return nil, fmt.Errorf("%w: %q", userdata.ErrInvalidUser, userID)
	}
	if s, ok := m.sessions[userID]; ok {
		s.lastActive = m.clock.Now()
		return s, nil
	}

	s := m.start(userID)
	m.sessions[userID] = s
	log.Printf("Session started for %s (sessions: %d)", userID, len(m.sessions))
	return s, nil
}

func (m *Manager) start(userID string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		userID:      userID,
		player:      player.New(m.cfg.Player, m.store.SettingsStore(userID), m.clock),
		broadcaster: stream.NewBroadcaster(),
		cancel:      cancel,
		lastActive:  m.clock.Now(),
	}
	s.broadcaster.OnChange(func(int) { m.touch(s) })
	s.player.Start(ctx)

	if !m.cfg.NoRenderer {
		r := audio.NewRenderer(s.player.Context())
		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			r.Run(ctx)
		}()
		go func() {
			defer s.wg.Done()
			s.broadcaster.Run(ctx, r.Frames())
		}()
	}
	return s
}

func (m *Manager) touch(s *Session) {
	m.mu.Lock()
	s.lastActive = m.clock.Now()
	m.mu.Unlock()
}

// Acquire returns the user's session and counts a connection against it
// until release is called. A session with open connections is never
// reaped.
func (m *Manager) Acquire(userID string) (*Session, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.get(userID)
	if err != nil {
		return nil, nil, err
	}
	s.conns++

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			s.conns--
			s.lastActive = m.clock.Now()
			m.mu.Unlock()
		})
	}
	return s, release, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// audible reports whether the session is playing short of the end of its
// buffer. A source that ran off the end stays Playing but is silent.
func (s *Session) audible() bool {
	st, pos, total := s.player.Transport().Snapshot()
	_, playing := st.(transport.Playing)
	return playing && pos < total
}

func (m *Manager) idle(s *Session, now time.Time) bool {
	if s.conns > 0 || s.broadcaster.ListenerCount() > 0 || s.audible() {
		return false
	}
	return now.Sub(s.lastActive) >= m.cfg.IdleTimeout
}

// Reap closes every idle session and returns how many it closed.
func (m *Manager) Reap(ctx context.Context) int {
	now := m.clock.Now()
	m.mu.Lock()
	var victims []*Session
	for id, s := range m.sessions {
		if s.audible() {
			s.lastActive = now
			continue
		}
		if m.idle(s, now) {
			victims = append(victims, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range victims {
		s.close(ctx)
		log.Printf("Session for %s closed after %v idle", s.userID, m.cfg.IdleTimeout)
	}
	return len(victims)
}

// Run reaps idle sessions until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.cfg.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.Reap(ctx)
		}
	}
}

// Close shuts every session down, flushing pending settings.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.close(ctx)
	}
	if len(all) > 0 {
		log.Printf("Closed %d sessions", len(all))
	}
}

func (s *Session) close(ctx context.Context) {
	s.player.Close(ctx)
	s.broadcaster.Close()
	s.cancel()
	s.wg.Wait()
}

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/satindergrewal/tempo/internal/audio"
	"github.com/satindergrewal/tempo/internal/player"
	"github.com/satindergrewal/tempo/internal/userdata"
)

func newManager(t *testing.T) (*Manager, *clockwork.FakeClock) {
	t.Helper()
	clk := clockwork.NewFakeClock()
	m := NewManager(Config{
		Player:      player.DefaultConfig(),
		IdleTimeout: time.Minute,
		NoRenderer:  true,
	}, userdata.NewStore(t.TempDir()), clk)
	t.Cleanup(func() { m.Close(context.Background()) })
	return m, clk
}

func TestGetReusesSession(t *testing.T) {
	m, _ := newManager(t)
	a, err := m.Get("u1")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := m.Get("u1")
	c, _ := m.Get("u2")
	if a != b {
		t.Error("Get returned a different session for the same user")
	}
	if a == c {
		t.Error("Get returned the same session for different users")
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
	if a.UserID() != "u1" {
		t.Errorf("UserID() = %q, want u1", a.UserID())
	}
}

func TestGetInvalidUser(t *testing.T) {
	m, _ := newManager(t)
	if _, err := m.Get("../x"); !errors.Is(err, userdata.ErrInvalidUser) {
		t.Errorf("Get() = %v, want ErrInvalidUser", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestReapIdle(t *testing.T) {
	m, clk := newManager(t)
	m.Get("u1")

	clk.Advance(30 * time.Second)
	if n := m.Reap(context.Background()); n != 0 {
		t.Errorf("Reap() = %d before timeout, want 0", n)
	}
	clk.Advance(31 * time.Second)
	if n := m.Reap(context.Background()); n != 1 {
		t.Errorf("Reap() = %d after timeout, want 1", n)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestReapKeepsConnected(t *testing.T) {
	m, clk := newManager(t)
	_, release, err := m.Acquire("u1")
	if err != nil {
		t.Fatal(err)
	}

	clk.Advance(2 * time.Minute)
	if n := m.Reap(context.Background()); n != 0 {
		t.Errorf("Reap() = %d with an open connection, want 0", n)
	}

	release()
	release()
	clk.Advance(2 * time.Minute)
	if n := m.Reap(context.Background()); n != 1 {
		t.Errorf("Reap() = %d after release, want 1", n)
	}
}

func TestReapKeepsListeners(t *testing.T) {
	m, clk := newManager(t)
	s, _ := m.Get("u1")
	l := s.Broadcaster().Subscribe()

	clk.Advance(2 * time.Minute)
	if n := m.Reap(context.Background()); n != 0 {
		t.Errorf("Reap() = %d with a listener, want 0", n)
	}

	s.Broadcaster().Unsubscribe(l)
	clk.Advance(2 * time.Minute)
	if n := m.Reap(context.Background()); n != 1 {
		t.Errorf("Reap() = %d after unsubscribe, want 1", n)
	}
}

func TestReapKeepsPlaying(t *testing.T) {
	m, clk := newManager(t)
	s, _ := m.Get("u1")
	s.Player().Load(audio.NewBuffer(make([][2]float64, 100*600), 100))
	if err := s.Player().Play(); err != nil {
		t.Fatal(err)
	}

	clk.Advance(2 * time.Minute)
	if n := m.Reap(context.Background()); n != 0 {
		t.Errorf("Reap() = %d while playing, want 0", n)
	}

	// idle time counts from the pause
	s.Player().Pause()
	clk.Advance(30 * time.Second)
	if n := m.Reap(context.Background()); n != 0 {
		t.Errorf("Reap() = %d right after pause, want 0", n)
	}
	clk.Advance(time.Minute)
	if n := m.Reap(context.Background()); n != 1 {
		t.Errorf("Reap() = %d after idle pause, want 1", n)
	}
}

func TestCloseRejectsNewSessions(t *testing.T) {
	m, _ := newManager(t)
	s, _ := m.Get("u1")
	l := s.Broadcaster().Subscribe()

	m.Close(context.Background())
	select {
	case <-l.Done():
	default:
		t.Error("listener still open after Close")
	}
	if _, err := m.Get("u1"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() after Close = %v, want ErrClosed", err)
	}
	if _, _, err := m.Acquire("u1"); !errors.Is(err, ErrClosed) {
		t.Errorf("Acquire() after Close = %v, want ErrClosed", err)
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	m, _ := newManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReapPlayedToEnd(t *testing.T) {
	m, clk := newManager(t)
	s, _ := m.Get("u1")
	s.Player().Load(audio.NewBuffer(make([][2]float64, 100*10), 100))
	s.Player().Play()

	// 10s of audio ran out long ago
	clk.Advance(2 * time.Minute)
	if n := m.Reap(context.Background()); n != 1 {
		t.Errorf("Reap() = %d for a finished track, want 1", n)
	}
}

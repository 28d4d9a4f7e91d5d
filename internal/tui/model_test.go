package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/satindergrewal/tempo/internal/position"
	"github.com/satindergrewal/tempo/internal/settings"
	"github.com/satindergrewal/tempo/internal/transport"
)

type fakePlayer struct {
	s       settings.Settings
	playing bool
	pos     time.Duration
	loaded  bool
	stops   int
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{s: settings.Defaults(), loaded: true}
}

func (f *fakePlayer) TogglePlay() error {
	if !f.loaded {
		return transport.ErrNotReady
	}
	f.playing = !f.playing
	return nil
}

func (f *fakePlayer) Stop() { f.stops++; f.playing = false; f.pos = 0 }

func (f *fakePlayer) Seek(pos time.Duration) error {
	f.pos = pos
	return nil
}

func (f *fakePlayer) SetPlaybackRate(rate float64) error {
	f.s.PlaybackRate = rate
	return nil
}

func (f *fakePlayer) SetFilterType(ft settings.FilterType) error {
	f.s.FilterType = ft
	return nil
}

func (f *fakePlayer) SetFrequency(freq float64) error {
	f.s = f.s.WithFrequency(freq)
	return nil
}

func (f *fakePlayer) Settings() settings.Settings { return f.s }
func (f *fakePlayer) Playing() bool               { return f.playing }

func (f *fakePlayer) Report() position.Report {
	state := "stopped"
	if f.playing {
		state = "playing"
	}
	return position.Report{
		State:      state,
		PositionMs: f.pos.Milliseconds(),
		Elapsed:    position.Format(f.pos),
		Total:      "3:00",
		Progress:   position.Progress(f.pos, 3*time.Minute),
	}
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func press(m Model, keys ...tea.KeyMsg) Model {
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(Model)
	}
	return m
}

func TestStepRate(t *testing.T) {
	tests := []struct {
		cur  float64
		dir  int
		want float64
	}{
		{1, 1, 2},
		{1, -1, 0.5},
		{2, 1, 2},
		{0.5, -1, 0.5},
		{1.5, 1, 2}, // 1.5 is closest to 1
		{3, -1, 1},
	}
	for _, tt := range tests {
		if got := stepRate(tt.cur, tt.dir); got != tt.want {
			t.Errorf("stepRate(%v, %d) = %v, want %v", tt.cur, tt.dir, got, tt.want)
		}
	}
}

func TestNextFilter(t *testing.T) {
	tests := []struct{ in, want settings.FilterType }{
		{settings.FilterNone, settings.FilterHighpass},
		{settings.FilterHighpass, settings.FilterLowpass},
		{settings.FilterLowpass, settings.FilterNone},
		{"bogus", settings.FilterNone},
	}
	for _, tt := range tests {
		if got := nextFilter(tt.in); got != tt.want {
			t.Errorf("nextFilter(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTogglePlay(t *testing.T) {
	p := newFakePlayer()
	m := press(NewModel(p, "song.mp3"), tea.KeyMsg{Type: tea.KeySpace})
	if !p.playing {
		t.Fatal("space did not start playback")
	}
	if m.report.State != "playing" {
		t.Errorf("report state = %q, want playing", m.report.State)
	}
	if !strings.Contains(m.View(), "Playing") {
		t.Error("view does not show Playing")
	}

	m = press(m, runes("s"))
	if p.playing || p.stops != 1 {
		t.Errorf("after s: playing=%v stops=%d, want stopped once", p.playing, p.stops)
	}
}

func TestNotReadyShown(t *testing.T) {
	p := newFakePlayer()
	p.loaded = false
	m := press(NewModel(p, ""), tea.KeyMsg{Type: tea.KeySpace})
	if !strings.Contains(m.View(), "ERR: nothing loaded") {
		t.Errorf("view = %q, want not-ready error", m.View())
	}

	// cleared by the next key
	m = press(m, runes("f"))
	if m.err != nil {
		t.Errorf("err = %v after next key, want nil", m.err)
	}
}

func TestRateKeys(t *testing.T) {
	p := newFakePlayer()
	m := NewModel(p, "")
	m = press(m, runes("]"))
	if p.s.PlaybackRate != 2 {
		t.Errorf("rate = %v after ], want 2", p.s.PlaybackRate)
	}
	press(m, runes("["), runes("["), runes("["))
	if p.s.PlaybackRate != 0.5 {
		t.Errorf("rate = %v after [[[, want 0.5", p.s.PlaybackRate)
	}
}

func TestFrequencyKeys(t *testing.T) {
	p := newFakePlayer()
	m := press(NewModel(p, ""), runes("+"))
	if p.s.HighpassFrequency != 1000 {
		t.Errorf("frequency changed with no filter: %v", p.s.HighpassFrequency)
	}

	m = press(m, runes("f"), runes("+"))
	if p.s.FilterType != settings.FilterHighpass || p.s.HighpassFrequency != 1250 {
		t.Errorf("settings = %+v, want highpass at 1250", p.s)
	}
	press(m, runes("-"), runes("-"))
	if p.s.HighpassFrequency != 800 {
		t.Errorf("HighpassFrequency = %v, want 800", p.s.HighpassFrequency)
	}
	if p.s.LowpassFrequency != 1000 {
		t.Errorf("LowpassFrequency = %v, want untouched 1000", p.s.LowpassFrequency)
	}
}

func TestSeekKeys(t *testing.T) {
	p := newFakePlayer()
	m := press(NewModel(p, ""), tea.KeyMsg{Type: tea.KeyRight}, tea.KeyMsg{Type: tea.KeyRight})
	if p.pos != 10*time.Second {
		t.Errorf("pos = %v, want 10s", p.pos)
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyLeft}, tea.KeyMsg{Type: tea.KeyLeft}, tea.KeyMsg{Type: tea.KeyLeft})
	if p.pos != 0 {
		t.Errorf("pos = %v, want clamped to 0", p.pos)
	}

	p.playing = true
	press(m, tea.KeyMsg{Type: tea.KeyRight})
	if p.pos != 0 {
		t.Errorf("pos = %v, seek must not move a playing transport", p.pos)
	}
}

func TestQuit(t *testing.T) {
	_, cmd := NewModel(newFakePlayer(), "").Update(runes("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestViewShowsSettings(t *testing.T) {
	p := newFakePlayer()
	p.s = settings.Settings{PlaybackRate: 2, FilterType: settings.FilterLowpass, HighpassFrequency: 1000, LowpassFrequency: 440}
	p.pos = 65 * time.Second
	v := NewModel(p, "song.flac").View()
	for _, want := range []string{"song.flac", "1:05 / 3:00", "[2x]", "[lowpass]", "440 Hz"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

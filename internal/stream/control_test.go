package stream

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/satindergrewal/tempo/internal/position"
	"github.com/satindergrewal/tempo/internal/settings"
	"github.com/satindergrewal/tempo/internal/transport"
)

type fakeController struct {
	mu       sync.Mutex
	calls    []string
	s        settings.Settings
	seek     time.Duration
	playErr  error
	reports  []func(position.Report)
	settings []func(settings.Settings)
}

func newFakeController() *fakeController {
	return &fakeController{s: settings.Defaults()}
}

func (f *fakeController) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) Play() error { f.record("play"); return f.playErr }
func (f *fakeController) Pause()      { f.record("pause") }
func (f *fakeController) Stop()       { f.record("stop") }

func (f *fakeController) Seek(pos time.Duration) error {
	f.record("seek")
	f.mu.Lock()
	f.seek = pos
	f.mu.Unlock()
	return nil
}

func (f *fakeController) set(call string, mutate func(*settings.Settings)) error {
	f.record(call)
	f.mu.Lock()
	next := f.s
	mutate(&next)
	if err := next.Validate(); err != nil {
		f.mu.Unlock()
		return err
	}
	f.s = next
	fns := append(([]func(settings.Settings))(nil), f.settings...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(next)
	}
	return nil
}

func (f *fakeController) SetPlaybackRate(rate float64) error {
	return f.set("rate", func(s *settings.Settings) { s.PlaybackRate = rate })
}

func (f *fakeController) SetFilterType(ft settings.FilterType) error {
	return f.set("filter", func(s *settings.Settings) { s.FilterType = ft })
}

func (f *fakeController) SetFrequency(freq float64) error {
	return f.set("frequency", func(s *settings.Settings) { *s = s.WithFrequency(freq) })
}

func (f *fakeController) ApplySettings(next settings.Settings) error {
	return f.set("settings", func(s *settings.Settings) { *s = next })
}

func (f *fakeController) Settings() settings.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s
}

func (f *fakeController) Report() position.Report {
	return position.Report{State: "stopped", Elapsed: "0:00", Total: "0:00"}
}

func (f *fakeController) OnReport(fn func(position.Report)) func() {
	f.mu.Lock()
	f.reports = append(f.reports, fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeController) OnSettings(fn func(settings.Settings)) func() {
	f.mu.Lock()
	f.settings = append(f.settings, fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeController) publish(rep position.Report) {
	f.mu.Lock()
	fns := append(([]func(position.Report))(nil), f.reports...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(rep)
	}
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		cmd     string
		wantErr bool
	}{
		{`{"type":"play"}`, false},
		{`{"type":"pause"}`, false},
		{`{"type":"stop"}`, false},
		{`{"type":"seek","data":{"positionMs":1500}}`, false},
		{`{"type":"seek"}`, true},
		{`{"type":"seek","data":{}}`, true},
		{`{"type":"rate","data":{"playbackRate":2}}`, false},
		{`{"type":"rate","data":{"playbackRate":"fast"}}`, true},
		{`{"type":"filter","data":{"filterType":"lowpass"}}`, false},
		{`{"type":"frequency","data":{"frequency":440}}`, false},
		{`{"type":"settings","data":{"playbackRate":0.5}}`, false},
		{`{"type":"rewind"}`, true},
	}
	for _, tt := range tests {
		var cmd Command
		if err := json.Unmarshal([]byte(tt.cmd), &cmd); err != nil {
			t.Fatal(err)
		}
		err := Dispatch(newFakeController(), cmd)
		if (err != nil) != tt.wantErr {
			t.Errorf("Dispatch(%s) = %v, wantErr %v", tt.cmd, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrBadCommand) {
			t.Errorf("Dispatch(%s) = %v, want ErrBadCommand", tt.cmd, err)
		}
	}
}

func TestDispatchValues(t *testing.T) {
	c := newFakeController()
	Dispatch(c, Command{Type: "seek", Data: json.RawMessage(`{"positionMs":1500}`)})
	if c.seek != 1500*time.Millisecond {
		t.Errorf("seek = %v, want 1.5s", c.seek)
	}

	Dispatch(c, Command{Type: "filter", Data: json.RawMessage(`{"filterType":"highpass"}`)})
	Dispatch(c, Command{Type: "frequency", Data: json.RawMessage(`{"frequency":250}`)})
	got := c.Settings()
	if got.FilterType != settings.FilterHighpass || got.HighpassFrequency != 250 || got.LowpassFrequency != 1000 {
		t.Errorf("settings = %+v, want highpass at 250", got)
	}

	// omitted fields fall back to defaults
	Dispatch(c, Command{Type: "settings", Data: json.RawMessage(`{"playbackRate":2}`)})
	want := settings.Defaults()
	want.PlaybackRate = 2
	if got := c.Settings(); got != want {
		t.Errorf("settings = %+v, want %+v", got, want)
	}
}

func dialControl(t *testing.T, c Controller) *websocket.Conn {
	t.Helper()
	h := NewControlHandler(func(*http.Request) (Controller, func(), error) {
		return c, func() {}, nil
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type inbound struct {
	Type       string            `json:"type"`
	Message    string            `json:"message"`
	Settings   settings.Settings `json:"settings"`
	State      string            `json:"state"`
	PositionMs int64             `json:"positionMs"`
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) inbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var m inbound
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("waiting for %q: %v", typ, err)
		}
		if m.Type == typ {
			return m
		}
	}
}

func TestControlHandlerGreets(t *testing.T) {
	conn := dialControl(t, newFakeController())

	var first, second inbound
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatal(err)
	}
	if first.Type != "settings" || first.Settings != settings.Defaults() {
		t.Errorf("first message = %+v, want default settings", first)
	}
	if second.Type != "position" || second.State != "stopped" {
		t.Errorf("second message = %+v, want stopped position", second)
	}
}

func TestControlHandlerAppliesCommands(t *testing.T) {
	c := newFakeController()
	conn := dialControl(t, c)
	readUntil(t, conn, "position")

	if err := conn.WriteJSON(Command{Type: "rate", Data: json.RawMessage(`{"playbackRate":2}`)}); err != nil {
		t.Fatal(err)
	}
	m := readUntil(t, conn, "settings")
	if m.Settings.PlaybackRate != 2 {
		t.Errorf("PlaybackRate = %v, want 2", m.Settings.PlaybackRate)
	}
}

func TestControlHandlerReportsErrors(t *testing.T) {
	c := newFakeController()
	c.playErr = transport.ErrNotReady
	conn := dialControl(t, c)
	readUntil(t, conn, "position")

	conn.WriteJSON(Command{Type: "play"})
	if m := readUntil(t, conn, "notice"); m.Message == "" {
		t.Error("notice has no message")
	}

	conn.WriteJSON(Command{Type: "rate", Data: json.RawMessage(`{"playbackRate":-1}`)})
	if m := readUntil(t, conn, "error"); !strings.Contains(m.Message, "invalid") {
		t.Errorf("error message = %q, want validation error", m.Message)
	}
}

func TestControlHandlerForwardsReports(t *testing.T) {
	c := newFakeController()
	conn := dialControl(t, c)
	readUntil(t, conn, "position")

	c.publish(position.Report{State: "playing", PositionMs: 65000, Elapsed: "1:05"})
	if m := readUntil(t, conn, "position"); m.PositionMs != 65000 || m.State != "playing" {
		t.Errorf("position = %+v, want playing at 65000", m)
	}
}

func TestControlHandlerUnauthorized(t *testing.T) {
	h := NewControlHandler(func(*http.Request) (Controller, func(), error) {
		return nil, nil, errors.New("no session")
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

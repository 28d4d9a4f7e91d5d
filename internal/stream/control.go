package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/satindergrewal/tempo/internal/position"
	"github.com/satindergrewal/tempo/internal/settings"
	"github.com/satindergrewal/tempo/internal/transport"
)

// ErrBadCommand is returned for unknown or malformed control commands.
var ErrBadCommand = errors.New("bad command")

const writeTimeout = 5 * time.Second

// Command is a control message from the browser.
type Command struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Controller is the playback surface a control connection drives.
// *player.Player satisfies it.
type Controller interface {
	Play() error
	Pause()
	Stop()
	Seek(pos time.Duration) error
	SetPlaybackRate(rate float64) error
	SetFilterType(ft settings.FilterType) error
	SetFrequency(freq float64) error
	ApplySettings(s settings.Settings) error
	Settings() settings.Settings
	Report() position.Report
	OnReport(fn func(position.Report)) func()
	OnSettings(fn func(settings.Settings)) func()
}

// ControlResolver finds the controller for a request. release is called
// when the connection ends.
type ControlResolver func(r *http.Request) (c Controller, release func(), err error)

type positionMessage struct {
	Type string `json:"type"`
	position.Report
}

type settingsMessage struct {
	Type     string            `json:"type"`
	Settings settings.Settings `json:"settings"`
}

type textMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Dispatch applies one command to c.
func Dispatch(c Controller, cmd Command) error {
	switch cmd.Type {
	case "play":
		return c.Play()
	case "pause":
		c.Pause()
		return nil
	case "stop":
		c.Stop()
		return nil
	case "seek":
		var d struct {
			PositionMs *float64 `json:"positionMs"`
		}
		if err := decodeData(cmd, &d); err != nil {
			return err
		}
		if d.PositionMs == nil {
			return fmt.Errorf("%w: seek needs positionMs", ErrBadCommand)
		}
		return c.Seek(time.Duration(*d.PositionMs * float64(time.Millisecond)))
	case "rate":
		var d struct {
			PlaybackRate *float64 `json:"playbackRate"`
		}
		if err := decodeData(cmd, &d); err != nil {
			return err
		}
		if d.PlaybackRate == nil {
			return fmt.Errorf("%w: rate needs playbackRate", ErrBadCommand)
		}
		return c.SetPlaybackRate(*d.PlaybackRate)
	case "filter":
		var d struct {
			FilterType settings.FilterType `json:"filterType"`
		}
		if err := decodeData(cmd, &d); err != nil {
			return err
		}
		return c.SetFilterType(d.FilterType)
	case "frequency":
		var d struct {
			Frequency *float64 `json:"frequency"`
		}
		if err := decodeData(cmd, &d); err != nil {
			return err
		}
		if d.Frequency == nil {
			return fmt.Errorf("%w: frequency needs frequency", ErrBadCommand)
		}
		return c.SetFrequency(*d.Frequency)
	case "settings":
		var s settings.Settings
		if err := decodeData(cmd, &s); err != nil {
			return err
		}
		return c.ApplySettings(s)
	}
	return fmt.Errorf("%w: unknown type %q", ErrBadCommand, cmd.Type)
}

func decodeData(cmd Command, v any) error {
	if len(cmd.Data) == 0 {
		return fmt.Errorf("%w: %s needs data", ErrBadCommand, cmd.Type)
	}
	if err := json.Unmarshal(cmd.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadCommand, cmd.Type, err)
	}
	return nil
}

// upgrader accepts same-origin and local development origins.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		host := r.Host
		if strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host) {
			return true
		}
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			return true
		}
		log.Printf("Rejected WebSocket connection from origin: %s", origin)
		return false
	},
}

// ControlHandler serves the control websocket: commands in, position and
// settings updates out.
type ControlHandler struct {
	resolve ControlResolver
}

// NewControlHandler creates a control websocket handler.
func NewControlHandler(resolve ControlResolver) *ControlHandler {
	return &ControlHandler{resolve: resolve}
}

func (h *ControlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, release, err := h.resolve(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	defer release()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// All writes happen on this goroutine; callbacks only queue.
	out := make(chan any, 64)
	send := func(m any) {
		select {
		case out <- m:
		default:
		}
	}
	update := make(chan position.Report, 1)

	unsubReport := c.OnReport(func(rep position.Report) {
		// keep only the newest report
		select {
		case <-update:
		default:
		}
		select {
		case update <- rep:
		default:
		}
	})
	defer unsubReport()
	unsubSettings := c.OnSettings(func(s settings.Settings) {
		send(settingsMessage{Type: "settings", Settings: s})
	})
	defer unsubSettings()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var cmd Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			if err := Dispatch(c, cmd); err != nil {
				if errors.Is(err, transport.ErrNotReady) {
					send(textMessage{Type: "notice", Message: err.Error()})
					continue
				}
				log.Printf("Control command %q failed: %v", cmd.Type, err)
				send(textMessage{Type: "error", Message: err.Error()})
			}
		}
	}()

	write := func(m any) error {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(m)
	}

	if err := write(settingsMessage{Type: "settings", Settings: c.Settings()}); err != nil {
		return
	}
	if err := write(positionMessage{Type: "position", Report: c.Report()}); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case m := <-out:
			if err := write(m); err != nil {
				return
			}
		case rep := <-update:
			if err := write(positionMessage{Type: "position", Report: rep}); err != nil {
				return
			}
		}
	}
}

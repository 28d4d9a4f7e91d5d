// Package player wires one audio context, graph builder, transport,
// settings synchronizer and position reporter into a single playback unit.
package player

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/satindergrewal/tempo/internal/audio"
	"github.com/satindergrewal/tempo/internal/graph"
	"github.com/satindergrewal/tempo/internal/position"
	"github.com/satindergrewal/tempo/internal/settings"
	"github.com/satindergrewal/tempo/internal/transport"
)

// Config tunes a Player.
type Config struct {
	SampleRate     int
	HandoffGrace   time.Duration
	SaveDebounce   time.Duration
	ReportInterval time.Duration
	OutputGain     float64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate:     audio.SampleRate,
		HandoffGrace:   transport.DefaultGrace,
		SaveDebounce:   settings.DefaultDebounce,
		ReportInterval: position.DefaultInterval,
		OutputGain:     1,
	}
}

// Player is safe for concurrent use. Commands are applied one at a time.
type Player struct {
	ctx       *graph.Context
	transport *transport.Transport
	sync      *settings.Synchronizer
	reporter  *position.Reporter

	cmdMu sync.Mutex

	mu        sync.Mutex
	listeners map[int]func(settings.Settings)
	nextID    int
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a player persisting settings to store.
func New(cfg Config, store settings.Store, clk clockwork.Clock) *Player {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.SampleRate
	}
	gctx := graph.NewContext(cfg.SampleRate)
	b := graph.NewBuilder(gctx)
	if cfg.OutputGain > 0 {
		b.Gain().SetValue(cfg.OutputGain)
	}
	tr := transport.New(b, clk, cfg.HandoffGrace)
	return &Player{
		ctx:       gctx,
		transport: tr,
		sync:      settings.NewSynchronizer(store, clk, cfg.SaveDebounce),
		reporter:  position.NewReporter(tr, clk, cfg.ReportInterval),
		listeners: make(map[int]func(settings.Settings)),
	}
}

// Context returns the audio context; its Stream method is the rendered output.
func (p *Player) Context() *graph.Context { return p.ctx }

// Transport exposes the state machine for read access.
func (p *Player) Transport() *transport.Transport { return p.transport }

// Start loads stored settings in the background and starts the position
// reporter. It returns immediately.
func (p *Player) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel, p.done = cancel, done
	p.mu.Unlock()

	go func() {
		defer close(done)
		p.reporter.Run(runCtx)
	}()
	p.sync.Start(runCtx, p.adopt)
}

// adopt applies settings that arrived from the store. They are not saved
// back. A local change that raced the load wins.
func (p *Player) adopt(s settings.Settings) {
	p.cmdMu.Lock()
	if p.sync.Current() != s {
		p.cmdMu.Unlock()
		return
	}
	if err := p.transport.Apply(s); err != nil {
		p.cmdMu.Unlock()
		log.Printf("Ignoring loaded settings: %v", err)
		return
	}
	p.cmdMu.Unlock()

	log.Printf("Settings loaded (rate=%g filter=%s)", s.PlaybackRate, s.FilterType)
	p.emit(s)
}

// Close stops playback, saves any pending settings change and stops
// background work.
func (p *Player) Close(ctx context.Context) {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	p.sync.Flush(ctx)
	p.sync.Close()
	p.transport.Stop()
}

// OnReport registers fn for position reports.
func (p *Player) OnReport(fn func(position.Report)) func() {
	return p.reporter.Subscribe(fn)
}

// OnSettings registers fn for settings changes.
func (p *Player) OnSettings(fn func(settings.Settings)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *Player) emit(s settings.Settings) {
	p.mu.Lock()
	fns := make([]func(settings.Settings), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// Report returns the current position report.
func (p *Player) Report() position.Report { return p.reporter.Snapshot() }

// Settings returns the settings in effect.
func (p *Player) Settings() settings.Settings { return p.transport.Settings() }

// Playing reports whether audio is playing.
func (p *Player) Playing() bool {
	_, ok := p.transport.State().(transport.Playing)
	return ok
}

// LoadFile decodes raw and loads it. On a decode error the current
// buffer stays loaded.
func (p *Player) LoadFile(raw []byte) error {
	buf, err := audio.Decode(raw)
	if err != nil {
		log.Printf("Upload rejected: %v", err)
		return err
	}
	p.Load(buf)
	return nil
}

// Load replaces the buffer and rewinds.
func (p *Player) Load(buf *audio.Buffer) {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()
	p.transport.Load(buf)
}

// Play starts playback. It returns transport.ErrNotReady with nothing loaded.
func (p *Player) Play() error {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()
	return p.transport.Play()
}

// Pause pauses playback.
func (p *Player) Pause() {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()
	p.transport.Pause()
}

// Stop stops and rewinds.
func (p *Player) Stop() {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()
	p.transport.Stop()
}

// Seek moves the stopped position.
func (p *Player) Seek(pos time.Duration) error {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()
	return p.transport.Seek(pos)
}

// TogglePlay pauses when playing and plays otherwise.
func (p *Player) TogglePlay() error {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()
	if _, ok := p.transport.State().(transport.Playing); ok {
		p.transport.Pause()
		return nil
	}
	return p.transport.Play()
}

// SetPlaybackRate changes the rate.
func (p *Player) SetPlaybackRate(rate float64) error {
	return p.update(func(t *transport.Transport) error { return t.SetPlaybackRate(rate) })
}

// SetFilterType switches the filter.
func (p *Player) SetFilterType(ft settings.FilterType) error {
	return p.update(func(t *transport.Transport) error { return t.SetFilterType(ft) })
}

// SetFrequency tunes the active filter.
func (p *Player) SetFrequency(freq float64) error {
	return p.update(func(t *transport.Transport) error { return t.SetFrequency(freq) })
}

// ApplySettings replaces all settings at once.
func (p *Player) ApplySettings(s settings.Settings) error {
	return p.update(func(t *transport.Transport) error { return t.Apply(s) })
}

// update applies a settings command to the transport, then hands the
// result to the synchronizer.
func (p *Player) update(apply func(*transport.Transport) error) error {
	p.cmdMu.Lock()
	if err := apply(p.transport); err != nil {
		p.cmdMu.Unlock()
		return fmt.Errorf("apply settings: %w", err)
	}
	s := p.transport.Settings()
	p.sync.Update(s)
	p.cmdMu.Unlock()

	p.emit(s)
	return nil
}

package graph

import (
	"time"

	"github.com/satindergrewal/tempo/internal/audio"
	"github.com/satindergrewal/tempo/internal/settings"
)

// Builder assembles source -> [filter] -> gain chains. The gain stage is
// created once and stays connected to the destination for the builder's
// lifetime; only sources and filters are rebuilt.
type Builder struct {
	ctx  *Context
	gain *Gain
}

// NewBuilder creates a builder and connects its gain stage to the
// context's destination.
func NewBuilder(ctx *Context) *Builder {
	b := &Builder{ctx: ctx, gain: ctx.NewGain()}
	ctx.Connect(b.gain, ctx.dest)
	return b
}

// Context returns the context graphs are built in.
func (b *Builder) Context() *Context { return b.ctx }

// Gain returns the shared gain stage.
func (b *Builder) Gain() *Gain { return b.gain }

// Handle is one built chain. It is owned by whoever built it and must be
// released when no longer needed.
type Handle struct {
	b        *Builder
	source   *Source
	filter   *Filter
	kind     settings.FilterType
	released bool
}

// Build creates a new idle source for buf at rate and wires it through a
// filter of type ft (none for a direct connection) into the gain stage.
func (b *Builder) Build(buf *audio.Buffer, rate float64, ft settings.FilterType, freq float64) *Handle {
	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()
	return b.build(buf, rate, ft, freq)
}

func (b *Builder) build(buf *audio.Buffer, rate float64, ft settings.FilterType, freq float64) *Handle {
	src := b.ctx.NewSource(buf)
	src.setRate(rate)
	h := &Handle{b: b, source: src}
	h.wire(ft, freq)
	return h
}

// wire connects the source, through a new filter if ft asks for one.
func (h *Handle) wire(ft settings.FilterType, freq float64) {
	c := h.b.ctx
	h.kind = ft
	h.filter = nil
	if ft == settings.FilterHighpass || ft == settings.FilterLowpass {
		h.filter = c.NewFilter(ft, freq)
		c.connect(h.source, h.filter)
		c.connect(h.filter, h.b.gain)
		return
	}
	h.kind = settings.FilterNone
	c.connect(h.source, h.b.gain)
}

// Source returns the chain's source node.
func (h *Handle) Source() *Source { return h.source }

// Filter returns the chain's filter node, or nil when unfiltered.
func (h *Handle) Filter() *Filter {
	h.b.ctx.mu.Lock()
	defer h.b.ctx.mu.Unlock()
	return h.filter
}

// FilterType returns the type of the current filter stage.
func (h *Handle) FilterType() settings.FilterType {
	h.b.ctx.mu.Lock()
	defer h.b.ctx.mu.Unlock()
	return h.kind
}

// Start starts the source at offset.
func (h *Handle) Start(offset time.Duration) error {
	h.b.ctx.mu.Lock()
	defer h.b.ctx.mu.Unlock()
	if h.released {
		return ErrSourceStarted
	}
	return h.source.start(offset)
}

// Retune moves the live filter's cutoff. It reports false when the chain
// has no filter stage.
func (h *Handle) Retune(freq float64) bool {
	h.b.ctx.mu.Lock()
	defer h.b.ctx.mu.Unlock()
	if h.filter == nil || h.released {
		return false
	}
	h.filter.setFrequency(freq)
	return true
}

// Reconnect replaces the filter stage with one of type ft without touching
// the source. When ft is already the current type the cutoff is retuned.
func (h *Handle) Reconnect(ft settings.FilterType, freq float64) {
	c := h.b.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if h.released {
		return
	}
	if ft == h.kind {
		if h.filter != nil {
			h.filter.setFrequency(freq)
		}
		return
	}
	c.disconnect(h.source)
	if h.filter != nil {
		c.disconnect(h.filter)
	}
	h.wire(ft, freq)
}

// Release stops the source and disconnects the chain. It may be called
// any number of times.
func (h *Handle) Release() {
	c := h.b.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	h.release()
}

func (h *Handle) release() {
	if h.released {
		return
	}
	h.released = true
	c := h.b.ctx
	h.source.stop()
	c.disconnect(h.source)
	if h.filter != nil {
		c.disconnect(h.filter)
	}
}

// Handoff builds a replacement chain, starts it at offset and crossfades
// from old to it over fade. Both steps happen in one render-quantum gap,
// so the new source is always audible before the old one falls silent.
// old keeps running until its fade ends and must still be released by the
// caller. old may be nil.
func (b *Builder) Handoff(old *Handle, buf *audio.Buffer, rate float64, ft settings.FilterType, freq float64, offset, fade time.Duration) (*Handle, error) {
	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()

	h := b.build(buf, rate, ft, freq)
	if err := h.source.start(offset); err != nil {
		h.release()
		return nil, err
	}
	n := int(fade.Seconds() * float64(b.ctx.sampleRate))
	if old == nil || old.released {
		return h, nil
	}
	h.source.fade(0, 1, n)
	old.source.fade(old.source.gain, 0, n)
	return h, nil
}

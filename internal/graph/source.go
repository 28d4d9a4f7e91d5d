package graph

import (
	"errors"
	"time"

	"github.com/satindergrewal/tempo/internal/audio"
)

// ErrSourceStarted is returned when Start is called on a source that has
// already been started. Sources cannot be restarted; build a new one.
var ErrSourceStarted = errors.New("source already started")

type sourceState int

const (
	sourceIdle sourceState = iota
	sourcePlaying
	sourceStopped
)

// Source plays a Buffer once, from a start offset, at a rate multiplier.
type Source struct {
	node
	buf   *audio.Buffer
	rate  float64
	pos   float64 // fractional frame index into buf
	state sourceState
	ended bool

	// envelope
	gain     float64
	fadeFrom float64
	fadeTo   float64
	fadeAt   int
	fadeLen  int
}

// NewSource creates an idle source bound to buf at rate 1.
func (c *Context) NewSource(buf *audio.Buffer) *Source {
	s := &Source{buf: buf, rate: 1, gain: 1}
	s.ctx = c
	return s
}

// Rate returns the playback rate multiplier.
func (s *Source) Rate() float64 {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return s.rate
}

// SetRate changes the playback rate multiplier. Non-positive rates are ignored.
func (s *Source) SetRate(rate float64) {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.setRate(rate)
}

func (s *Source) setRate(rate float64) {
	if rate > 0 {
		s.rate = rate
	}
}

// Start begins playback at offset into the buffer.
func (s *Source) Start(offset time.Duration) error {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return s.start(offset)
}

func (s *Source) start(offset time.Duration) error {
	if s.state != sourceIdle {
		return ErrSourceStarted
	}
	s.pos = float64(s.buf.Offset(offset))
	s.state = sourcePlaying
	return nil
}

// Stop halts playback. Stopping an idle or stopped source is a no-op.
func (s *Source) Stop() {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.stop()
}

func (s *Source) stop() {
	s.state = sourceStopped
}

// Playing reports whether the source is started and has not stopped.
func (s *Source) Playing() bool {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return s.state == sourcePlaying
}

// Ended reports whether the source ran past the end of its buffer.
func (s *Source) Ended() bool {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return s.ended
}

// Position returns the buffer position of the next rendered frame.
func (s *Source) Position() time.Duration {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return time.Duration(s.pos / float64(s.buf.SampleRate()) * float64(time.Second))
}

// fade ramps the envelope to `to` over n output frames. A source faded
// to silence stops itself when the ramp completes.
func (s *Source) fade(from, to float64, n int) {
	if n <= 0 {
		s.gain = to
		s.fadeLen = 0
		if to == 0 {
			s.stop()
		}
		return
	}
	s.fadeFrom, s.fadeTo = from, to
	s.fadeAt, s.fadeLen = 0, n
	s.gain = from
}

func (s *Source) process(out [][2]float64) {
	if s.state != sourcePlaying {
		clear(out)
		return
	}

	step := s.rate * float64(s.buf.SampleRate()) / float64(s.ctx.sampleRate)
	last := s.buf.Len() - 1
	for i := range out {
		if s.state != sourcePlaying {
			out[i] = [2]float64{}
			continue
		}
		idx := int(s.pos)
		if idx > last {
			s.ended = true
			s.stop()
			out[i] = [2]float64{}
			continue
		}
		a := s.buf.At(idx)
		b := a
		if idx < last {
			b = s.buf.At(idx + 1)
		}
		frac := s.pos - float64(idx)
		g := s.envelope()
		out[i] = [2]float64{
			(a[0] + (b[0]-a[0])*frac) * g,
			(a[1] + (b[1]-a[1])*frac) * g,
		}
		s.pos += step
	}
}

// envelope returns the gain for the next frame and advances any ramp.
func (s *Source) envelope() float64 {
	if s.fadeLen == 0 {
		return s.gain
	}
	s.gain = audio.Fade(s.fadeFrom, s.fadeTo, s.fadeAt, s.fadeLen)
	s.fadeAt++
	if s.fadeAt >= s.fadeLen {
		s.gain = s.fadeTo
		s.fadeLen = 0
		if s.gain == 0 {
			s.stop()
		}
	}
	return s.gain
}

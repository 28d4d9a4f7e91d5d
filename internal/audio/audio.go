// Package audio holds decoded sample buffers and the helpers that move
// rendered audio between the graph and the encoders.
package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Buffer is an immutable, randomly seekable block of stereo samples.
type Buffer struct {
	frames     [][2]float64
	sampleRate int
}

// NewBuffer wraps frames recorded at sampleRate. The slice must not be
// modified afterwards.
func NewBuffer(frames [][2]float64, sampleRate int) *Buffer {
	return &Buffer{frames: frames, sampleRate: sampleRate}
}

// Len returns the number of frames.
func (b *Buffer) Len() int { return len(b.frames) }

// SampleRate returns the rate the frames were recorded at.
func (b *Buffer) SampleRate() int { return b.sampleRate }

// At returns frame i. The caller keeps i within [0, Len()).
func (b *Buffer) At(i int) [2]float64 { return b.frames[i] }

// Duration returns the playing time at rate 1.
func (b *Buffer) Duration() time.Duration {
	if b.sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.frames)) * time.Second / time.Duration(b.sampleRate)
}

// Offset converts a playing-time offset into a frame index, clamped to the buffer.
func (b *Buffer) Offset(d time.Duration) int {
	n := int(d.Seconds() * float64(b.sampleRate))
	return max(0, min(n, len(b.frames)))
}

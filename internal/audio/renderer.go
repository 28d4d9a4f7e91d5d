package audio

import (
	"context"
	"time"

	"github.com/gopxl/beep/v2"
)

// Renderer pulls 20ms frames from a streamer at real-time rate and
// publishes them as interleaved int16 PCM.
type Renderer struct {
	src     beep.Streamer
	frameCh chan []int16
	tick    time.Duration
}

// NewRenderer creates a renderer for src, typically a graph context.
func NewRenderer(src beep.Streamer) *Renderer {
	return &Renderer{
		src:     src,
		frameCh: make(chan []int16, 100),
		tick:    FrameDuration,
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (r *Renderer) Frames() <-chan []int16 {
	return r.frameCh
}

// Run renders until ctx is cancelled, then closes the frame channel.
func (r *Renderer) Run(ctx context.Context) {
	defer close(r.frameCh)

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	buf := make([][2]float64, FrameSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, ok := r.src.Stream(buf)
		for i := n; i < len(buf); i++ {
			buf[i] = [2]float64{}
		}
		frame := FloatToInt16(buf, nil)

		select {
		case r.frameCh <- frame:
		case <-ctx.Done():
			return
		}
		if !ok {
			return
		}
	}
}

package graph

import (
	"math"

	"github.com/satindergrewal/tempo/internal/settings"
)

// butterworthQ gives a maximally flat passband.
const butterworthQ = 1 / math.Sqrt2

// Filter is a second-order highpass or lowpass stage using the Audio EQ
// Cookbook biquad coefficients. Any other kind passes audio through.
type Filter struct {
	node
	kind settings.FilterType
	freq float64

	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     [2]float64
}

// NewFilter creates a filter of the given kind with its cutoff at freq Hz.
func (c *Context) NewFilter(kind settings.FilterType, freq float64) *Filter {
	f := &Filter{kind: kind}
	f.ctx = c
	f.setFrequency(freq)
	return f
}

// Kind returns the filter response.
func (f *Filter) Kind() settings.FilterType { return f.kind }

// Frequency returns the cutoff in Hz.
func (f *Filter) Frequency() float64 {
	f.ctx.mu.Lock()
	defer f.ctx.mu.Unlock()
	return f.freq
}

// SetFrequency moves the cutoff without resetting the filter state, so it
// can be swept while audio is flowing.
func (f *Filter) SetFrequency(freq float64) {
	f.ctx.mu.Lock()
	defer f.ctx.mu.Unlock()
	f.setFrequency(freq)
}

func (f *Filter) setFrequency(freq float64) {
	nyquist := float64(f.ctx.sampleRate) / 2
	freq = math.Max(1, math.Min(freq, nyquist*0.999))
	f.freq = freq

	w0 := 2 * math.Pi * freq / float64(f.ctx.sampleRate)
	cos, sin := math.Cos(w0), math.Sin(w0)
	alpha := sin / (2 * butterworthQ)

	var b0, b1, b2 float64
	switch f.kind {
	case settings.FilterHighpass:
		b0 = (1 + cos) / 2
		b1 = -(1 + cos)
		b2 = (1 + cos) / 2
	case settings.FilterLowpass:
		b0 = (1 - cos) / 2
		b1 = 1 - cos
		b2 = (1 - cos) / 2
	default:
		f.b0, f.b1, f.b2, f.a1, f.a2 = 1, 0, 0, 0, 0
		return
	}
	a0 := 1 + alpha
	f.b0, f.b1, f.b2 = b0/a0, b1/a0, b2/a0
	f.a1 = -2 * cos / a0
	f.a2 = (1 - alpha) / a0
}

func (f *Filter) process(out [][2]float64) {
	f.mix(out)
	for i := range out {
		for ch := 0; ch < 2; ch++ {
			x := out[i][ch]
			y := f.b0*x + f.b1*f.x1[ch] + f.b2*f.x2[ch] - f.a1*f.y1[ch] - f.a2*f.y2[ch]
			f.x2[ch], f.x1[ch] = f.x1[ch], x
			f.y2[ch], f.y1[ch] = f.y1[ch], y
			out[i][ch] = y
		}
	}
}

package graph

// Gain scales the sum of its inputs.
type Gain struct {
	node
	value float64
}

// NewGain creates a unity gain stage.
func (c *Context) NewGain() *Gain {
	g := &Gain{value: 1}
	g.ctx = c
	return g
}

// Value returns the current multiplier.
func (g *Gain) Value() float64 {
	g.ctx.mu.Lock()
	defer g.ctx.mu.Unlock()
	return g.value
}

// SetValue sets the multiplier.
func (g *Gain) SetValue(v float64) {
	g.ctx.mu.Lock()
	defer g.ctx.mu.Unlock()
	g.value = v
}

func (g *Gain) process(out [][2]float64) {
	g.mix(out)
	if g.value == 1 {
		return
	}
	for i := range out {
		out[i][0] *= g.value
		out[i][1] *= g.value
	}
}

// Destination is the output sink of a context.
type Destination struct {
	node
}

func (d *Destination) process(out [][2]float64) {
	d.mix(out)
}

// Package graph is a small pull-based audio processing graph: single-use
// buffer sources feed optional biquad filters and a gain stage into one
// persistent destination. A Context renders the graph on demand and satisfies
// beep.Streamer, so it can feed a speaker or a network renderer directly.
package graph

import (
	"sync"
)

// Context owns one graph. All topology and parameter changes and every
// render call are serialized by a single mutex.
type Context struct {
	mu         sync.Mutex
	sampleRate int
	dest       *Destination
	quantum    uint64
}

// NewContext creates a context rendering at sampleRate with its destination
// already in place.
func NewContext(sampleRate int) *Context {
	c := &Context{sampleRate: sampleRate}
	c.dest = &Destination{}
	c.dest.ctx = c
	return c
}

// SampleRate returns the render rate in Hz.
func (c *Context) SampleRate() int { return c.sampleRate }

// Destination returns the output sink shared by every graph in the context.
func (c *Context) Destination() *Destination { return c.dest }

// Stream renders the next len(samples) frames. It never reports exhaustion;
// an idle graph renders silence.
func (c *Context) Stream(samples [][2]float64) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quantum++
	pull(c.dest, samples)
	return len(samples), true
}

// Err always returns nil.
func (c *Context) Err() error { return nil }

// Connect routes src's output into dst. Connecting an existing edge again
// has no effect.
func (c *Context) Connect(src, dst Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connect(src, dst)
}

// Disconnect removes every outgoing edge of n. It is safe to call on a node
// that is already disconnected.
func (c *Context) Disconnect(n Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnect(n)
}

func (c *Context) connect(src, dst Node) {
	if src == nil || dst == nil || src == dst {
		return
	}
	s, d := src.base(), dst.base()
	for _, o := range s.outputs {
		if o == dst {
			return
		}
	}
	s.outputs = append(s.outputs, dst)
	d.inputs = append(d.inputs, src)
}

func (c *Context) disconnect(n Node) {
	if n == nil {
		return
	}
	b := n.base()
	for _, o := range b.outputs {
		ob := o.base()
		ob.inputs = remove(ob.inputs, n)
	}
	b.outputs = nil
}

func remove(nodes []Node, n Node) []Node {
	out := nodes[:0]
	for _, x := range nodes {
		if x != n {
			out = append(out, x)
		}
	}
	for i := len(out); i < len(nodes); i++ {
		nodes[i] = nil
	}
	return out
}

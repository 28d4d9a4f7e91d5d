package graph

// Node is a vertex of the processing graph. Nodes are created by a Context
// and may only be connected to nodes of the same context.
type Node interface {
	base() *node
	process(out [][2]float64)
}

// node carries the bookkeeping shared by every node kind.
type node struct {
	ctx     *Context
	inputs  []Node
	outputs []Node

	// output of the current render quantum, reused when a node feeds
	// more than one consumer
	cache     [][2]float64
	stamp     uint64
	rendering bool

	scratch [][2]float64
}

func (n *node) base() *node { return n }

// Inputs returns the number of nodes feeding n.
func (n *node) Inputs() int {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	return len(n.inputs)
}

// Outputs returns the number of nodes n feeds.
func (n *node) Outputs() int {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	return len(n.outputs)
}

// pull renders n into out, evaluating it at most once per quantum.
// A node reached again while it is rendering (a cycle) contributes silence.
func pull(n Node, out [][2]float64) {
	b := n.base()
	q := b.ctx.quantum
	if b.stamp == q && len(b.cache) == len(out) {
		copy(out, b.cache)
		return
	}
	if b.rendering {
		clear(out)
		return
	}
	b.rendering = true
	n.process(out)
	b.rendering = false

	b.cache = grow(b.cache, len(out))
	copy(b.cache, out)
	b.stamp = q
}

// mix sums every input of b into out.
func (b *node) mix(out [][2]float64) {
	clear(out)
	if len(b.inputs) == 0 {
		return
	}
	b.scratch = grow(b.scratch, len(out))
	for _, in := range b.inputs {
		pull(in, b.scratch)
		for i, s := range b.scratch {
			out[i][0] += s[0]
			out[i][1] += s[1]
		}
	}
}

func grow(buf [][2]float64, n int) [][2]float64 {
	if cap(buf) < n {
		return make([][2]float64, n)
	}
	return buf[:n]
}

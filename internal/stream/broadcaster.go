package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// Broadcaster fans out one session's rendered PCM frames to every
// connected stream of that session.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	closed    bool
	onChange  func(n int)
}

// Listener receives PCM frames from the broadcaster.
type Listener struct {
	C       chan []int16 // buffered channel of 20ms PCM frames
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Dropped returns how many frames were skipped because the listener fell behind.
func (l *Listener) Dropped() int64 { return l.dropped.Load() }

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
	}
}

// OnChange registers fn to be called with the new listener count after
// every subscribe and unsubscribe.
func (b *Broadcaster) OnChange(fn func(n int)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Subscribe registers a new listener. On a closed broadcaster the returned
// listener is already done.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, 150), // ~3 seconds of buffer at 20ms/frame
		done: make(chan struct{}),
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		l.once.Do(func() { close(l.done) })
		return l
	}
	b.listeners[l] = struct{}{}
	n, fn := len(b.listeners), b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn(n)
	}
	return l
}

// Unsubscribe removes a listener and signals it to stop. Calling it again
// is a no-op.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	n, fn := len(b.listeners), b.onChange
	b.mu.Unlock()

	l.once.Do(func() { close(l.done) })
	if ok && fn != nil {
		fn(n)
	}
}

// Close unsubscribes every listener and rejects new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	ls := make([]*Listener, 0, len(b.listeners))
	for l := range b.listeners {
		ls = append(ls, l)
	}
	b.mu.Unlock()

	for _, l := range ls {
		b.Unsubscribe(l)
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Run reads frames from source and fans out to all listeners.
// Slow listeners get frames dropped rather than blocking the broadcast.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					l.dropped.Add(1)
				}
			}
			b.mu.RUnlock()
		}
	}
}

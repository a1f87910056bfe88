package watch

import (
	"sync"
	"time"
)

// debouncer delays each path until it has been quiet for d, then sends it
// on out. Touching a pending path restarts its timer.
type debouncer struct {
	d    time.Duration
	out  chan<- string
	done chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func newDebouncer(d time.Duration, out chan<- string) *debouncer {
	return &debouncer{
		d:       d,
		out:     out,
		done:    make(chan struct{}),
		pending: make(map[string]*time.Timer),
	}
}

func (b *debouncer) touch(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.pending[path]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(b.d, func() {
		b.mu.Lock()
		if b.pending[path] != t {
			b.mu.Unlock()
			return
		}
		delete(b.pending, path)
		b.mu.Unlock()
		select {
		case b.out <- path:
		case <-b.done:
		}
	})
	b.pending[path] = t
}

func (b *debouncer) cancel(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.pending[path]; ok {
		t.Stop()
		delete(b.pending, path)
	}
}

// stop cancels every pending timer and releases timers blocked on out.
func (b *debouncer) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for p, t := range b.pending {
		t.Stop()
		delete(b.pending, p)
	}
	close(b.done)
}

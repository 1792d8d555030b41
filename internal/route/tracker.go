package route

import (
	"context"
	"sync"

	"github.com/example/box3-delivery/internal/models"
)

// Result is the outcome of one tracked fetch.
type Result struct {
	Generation uint64
	Route      models.RouteSummary
	Err        error
}

// Tracker runs at most one route fetch per view. Each new (start, end) pair
// bumps the generation and cancels the previous fetch; a result is delivered
// only while its generation is current and the tracker is open.
type Tracker struct {
	fetcher Fetcher

	mu      sync.Mutex
	gen     uint64
	start   models.Coord
	end     models.Coord
	hasPair bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewTracker(f Fetcher) *Tracker { return &Tracker{fetcher: f} }

// Request starts a fetch for the pair unless it is the pair already
// requested. deliver is called with the tracker lock held, so it must not
// call back into the tracker.
func (t *Tracker) Request(ctx context.Context, start, end models.Coord, deliver func(Result)) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return t.gen, false
	}
	if t.hasPair && t.start == start && t.end == end {
		return t.gen, false
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.gen++
	t.start, t.end, t.hasPair = start, end, true
	gen := t.gen
	fctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		v, err := t.fetcher.Fetch(fctx, start, end)
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed || t.gen != gen {
			return
		}
		deliver(Result{Generation: gen, Route: v, Err: err})
	}()
	return gen, true
}

// Generation returns the generation of the latest request.
func (t *Tracker) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// Close discards any pending result and waits for in-flight fetches to return.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()
	t.wg.Wait()
}

package panel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/manatee-project/manatee-jobs/internal/models"
)

// poller owns the periodic refresh. It is keyed by the cursor it was armed
// with; arming with a different cursor cancels the running loop first, so at
// most one loop is alive. Ticks follow the wall clock: each one runs in its
// own goroutine and a slow request never delays the next tick.
type poller struct {
	interval time.Duration
	tick     func(ctx context.Context, cursor models.Cursor)

	mu     sync.Mutex
	cursor models.Cursor
	cancel context.CancelFunc
	gen    uint64

	running  atomic.Int32
	inflight atomic.Int32
}

func newPoller(interval time.Duration, tick func(ctx context.Context, cursor models.Cursor)) *poller {
	return &poller{interval: interval, tick: tick}
}

func (p *poller) arm(parent context.Context, cursor models.Cursor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil && p.cursor == cursor {
		return
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if parent.Err() != nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	p.gen++
	p.cursor = cursor
	p.cancel = cancel

	p.running.Add(1)
	go p.loop(ctx, cursor, p.gen)
}

func (p *poller) disarm() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *poller) armedCursor() (models.Cursor, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor, p.cancel != nil
}

func (p *poller) loop(ctx context.Context, cursor models.Cursor, gen uint64) {
	defer p.running.Add(-1)
	defer p.release(gen)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.inflight.Add(1)
			go func() {
				defer p.inflight.Add(-1)
				if ctx.Err() != nil {
					return
				}
				p.tick(ctx, cursor)
			}()
		}
	}
}

// release forgets the loop of generation gen once it has exited, so a parent
// cancelled from outside does not leave the poller looking armed.
func (p *poller) release(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == gen && p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

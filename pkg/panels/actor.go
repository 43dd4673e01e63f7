package panels

import (
	"strings"
	"sync"
	"time"
)

// panelActor owns one panel's delta queue and its single scheduled flush.
// Keeping the buffer and timer private per panel removes cross-index
// interference; the actor reports back through Aggregator.appendText.
type panelActor struct {
	index  int
	window time.Duration
	agg    *Aggregator

	mu      sync.Mutex
	pending strings.Builder
	timer   *time.Timer
	stopped bool
}

func newPanelActor(index int, window time.Duration, agg *Aggregator) *panelActor {
	return &panelActor{
		index:  index,
		window: window,
		agg:    agg,
	}
}

// enqueue appends a delta to the pending buffer and schedules a flush if
// none is scheduled. Deltas keep FIFO order; the buffer only ever grows
// between flushes.
func (p *panelActor) enqueue(chunk string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	p.pending.WriteString(chunk)
	if p.timer == nil {
		p.timer = time.AfterFunc(p.window, p.flush)
	}
}

// flush drains the pending buffer into the aggregator. Runs on the timer
// goroutine; flushNow calls it synchronously. The actor lock is held across
// the apply so a concurrent terminal transition cannot slip between the
// drain and the append and lose the tail.
func (p *panelActor) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	text := p.pending.String()
	p.pending.Reset()

	if p.stopped || text == "" {
		return
	}
	p.agg.appendText(p.index, text)
}

// flushNow synchronously applies any queued delta, cancelling the scheduled
// flush. Used on terminal transitions so the stream tail is never lost.
func (p *panelActor) flushNow() {
	p.flush()
}

// reset discards queued text and cancels the scheduled flush.
func (p *panelActor) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.pending.Reset()
}

// stop permanently disables the actor.
func (p *panelActor) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.pending.Reset()
}

// Package panels maintains the per-slot state of streaming generation
// output. Each panel accumulates text deltas independently; bursts of deltas
// are coalesced through a short debounce window so downstream consumers see
// a bounded rate of state updates instead of one per chunk.
package panels

import (
	"sync"
	"time"

	"github.com/dmelnik/lumen/pkg/generation"
	"github.com/dmelnik/lumen/pkg/stream"
)

// DefaultDebounceWindow is the delta coalescing window.
const DefaultDebounceWindow = 100 * time.Millisecond

// Aggregator owns a fixed-size set of stream panels. All state reads go
// through Snapshot, which returns an immutable copy; internal updates
// replace the whole backing array so a concurrent reader never observes a
// half-applied change.
type Aggregator struct {
	mu     sync.RWMutex
	states []generation.StreamState
	aborts []func()
	closed bool

	updates chan []generation.StreamState
	actors  []*panelActor
}

// New creates an Aggregator with generation.PanelsCount idle panels and the
// given debounce window. A non-positive window falls back to the default.
func New(window time.Duration) *Aggregator {
	if window <= 0 {
		window = DefaultDebounceWindow
	}

	a := &Aggregator{
		states:  make([]generation.StreamState, generation.PanelsCount),
		aborts:  make([]func(), generation.PanelsCount),
		updates: make(chan []generation.StreamState, 1),
		actors:  make([]*panelActor, generation.PanelsCount),
	}
	for i := range a.states {
		a.states[i].Status = generation.StatusIdle
	}
	for i := range a.actors {
		a.actors[i] = newPanelActor(i, window, a)
	}
	return a
}

// Snapshot returns a copy of the current panel states.
func (a *Aggregator) Snapshot() []generation.StreamState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]generation.StreamState, len(a.states))
	copy(out, a.states)
	return out
}

// Updates returns a channel carrying the latest snapshot after each state
// change. Intermediate snapshots are coalesced; the receiver always gets the
// most recent one. The channel is closed by Close.
func (a *Aggregator) Updates() <-chan []generation.StreamState {
	return a.updates
}

// Submit resets panel index to an empty Loading state, starting a new run.
func (a *Aggregator) Submit(index int) {
	if !a.validIndex(index) {
		return
	}
	a.actors[index].reset()

	a.mu.Lock()
	a.states = replace(a.states, index, generation.StreamState{Status: generation.StatusLoading})
	a.mu.Unlock()
	a.notify()
}

// BindAbort registers the cancel function for the in-flight request feeding
// panel index. It replaces any previous handle.
func (a *Aggregator) BindAbort(index int, cancel func()) {
	if !a.validIndex(index) {
		return
	}
	a.mu.Lock()
	a.aborts[index] = cancel
	a.mu.Unlock()
}

// AppendDelta queues a text delta for panel index. Deltas arriving within
// the debounce window are concatenated in arrival order and applied as one
// state update.
func (a *Aggregator) AppendDelta(index int, chunk string) {
	if !a.validIndex(index) || chunk == "" {
		return
	}
	a.actors[index].enqueue(chunk)
}

// MarkDone finalizes panel index. Any delta still queued inside the debounce
// window is flushed synchronously first, so the tail of a stream that
// completes mid-window is never lost.
func (a *Aggregator) MarkDone(index int) {
	if !a.validIndex(index) {
		return
	}
	a.actors[index].flushNow()

	a.mu.Lock()
	if a.states[index].Status != generation.StatusLoading {
		a.mu.Unlock()
		return
	}
	next := a.states[index]
	next.Status = generation.StatusDone
	a.states = replace(a.states, index, next)
	a.aborts[index] = nil
	a.mu.Unlock()
	a.notify()
}

// Fail transitions panel index to the error state with a human-readable
// message. Accumulated text is kept; queued deltas are flushed first.
func (a *Aggregator) Fail(index int, message string) {
	if !a.validIndex(index) {
		return
	}
	if message == "" {
		message = "generation failed"
	}
	a.actors[index].flushNow()

	a.mu.Lock()
	if a.states[index].Status != generation.StatusLoading {
		a.mu.Unlock()
		return
	}
	next := a.states[index]
	next.Status = generation.StatusError
	next.Error = message
	a.states = replace(a.states, index, next)
	a.aborts[index] = nil
	a.mu.Unlock()
	a.notify()
}

// Abort cancels the in-flight request for panel index and returns the panel
// to Idle. A user-initiated abort is not an error. Aborting a panel that is
// not loading, or one whose handle was already cleared, is a no-op.
func (a *Aggregator) Abort(index int) {
	if !a.validIndex(index) {
		return
	}
	a.actors[index].reset()

	a.mu.Lock()
	cancel := a.aborts[index]
	a.aborts[index] = nil
	loading := a.states[index].Status == generation.StatusLoading
	if loading {
		a.states = replace(a.states, index, generation.StreamState{Status: generation.StatusIdle})
	}
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if loading {
		a.notify()
	}
}

// UpdateGrounding merges citation sources and search queries into panel
// index. Neither status nor text is affected.
func (a *Aggregator) UpdateGrounding(index int, meta *stream.GroundingMetadata) {
	if !a.validIndex(index) || meta == nil {
		return
	}

	a.mu.Lock()
	next := a.states[index]
	next.Sources = mergeSources(next.Sources, meta.Sources)
	next.SearchQueries = mergeStrings(next.SearchQueries, meta.SearchQueries)
	a.states = replace(a.states, index, next)
	a.mu.Unlock()
	a.notify()
}

// Restore replaces panel index with a previously persisted state, used when
// reloading a generation session from history.
func (a *Aggregator) Restore(index int, state generation.StreamState) {
	if !a.validIndex(index) {
		return
	}
	a.actors[index].reset()

	a.mu.Lock()
	a.states = replace(a.states, index, state)
	a.mu.Unlock()
	a.notify()
}

// Close cancels all pending debounce timers, clears the queues and closes
// the updates channel. The aggregator must not be used afterwards.
func (a *Aggregator) Close() {
	for _, actor := range a.actors {
		actor.stop()
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()
	close(a.updates)
}

// appendText applies coalesced delta text to panel index. Called by the
// panel actors; drops the text when the panel is no longer loading.
func (a *Aggregator) appendText(index int, text string) {
	a.mu.Lock()
	if a.closed || a.states[index].Status != generation.StatusLoading {
		a.mu.Unlock()
		return
	}
	next := a.states[index]
	next.Text += text
	a.states = replace(a.states, index, next)
	a.mu.Unlock()
	a.notify()
}

func (a *Aggregator) notify() {
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return
	}
	snap := make([]generation.StreamState, len(a.states))
	copy(snap, a.states)
	a.mu.RUnlock()

	// Coalesce: displace a stale pending snapshot rather than block.
	for {
		select {
		case a.updates <- snap:
			return
		default:
		}
		select {
		case <-a.updates:
		default:
		}
	}
}

func (a *Aggregator) validIndex(index int) bool {
	return index >= 0 && index < generation.PanelsCount
}

// replace produces a new array with slot index swapped, leaving the old
// backing array untouched for concurrent readers.
func replace(states []generation.StreamState, index int, next generation.StreamState) []generation.StreamState {
	out := make([]generation.StreamState, len(states))
	copy(out, states)
	out[index] = next
	return out
}

func mergeSources(existing, incoming []generation.GroundingSource) []generation.GroundingSource {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s.URI] = true
	}
	out := append([]generation.GroundingSource(nil), existing...)
	for _, s := range incoming {
		if s.URI == "" || !seen[s.URI] {
			out = append(out, s)
			seen[s.URI] = true
		}
	}
	return out
}

func mergeStrings(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s] = true
	}
	out := append([]string(nil), existing...)
	for _, s := range incoming {
		if !seen[s] {
			out = append(out, s)
			seen[s] = true
		}
	}
	return out
}

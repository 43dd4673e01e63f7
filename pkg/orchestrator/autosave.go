package orchestrator

import (
	"sync"

	"github.com/dmelnik/lumen/pkg/generation"
)

// Autosaver guarantees at most one history save per batch. The terminal
// check runs on every published update during the tail of a batch, so the
// fired flag is what prevents duplicate saves; it re-arms as soon as an
// update shows the batch in progress again.
type Autosaver struct {
	mu    sync.Mutex
	fired bool
	save  func()
}

// NewAutosaver creates an Autosaver invoking save when a batch completes.
func NewAutosaver(save func()) *Autosaver {
	return &Autosaver{save: save}
}

// Observe examines the current batch condition. When the batch is not yet
// fully terminal the saver re-arms; when it is terminal with content and has
// not fired for this batch, the save callback runs exactly once. Returns
// whether the save fired.
func (a *Autosaver) Observe(allTerminal, hasContent bool) bool {
	a.mu.Lock()

	if !allTerminal {
		a.fired = false
		a.mu.Unlock()
		return false
	}
	if a.fired || !hasContent {
		a.mu.Unlock()
		return false
	}
	a.fired = true
	a.mu.Unlock()

	a.save()
	return true
}

// ImageBatchCondition reduces an image batch to its autosave condition.
// An empty batch is never eligible.
func ImageBatchCondition(results []generation.ImageResult) (allTerminal, hasContent bool) {
	if len(results) == 0 {
		return false, false
	}
	allTerminal = true
	for _, r := range results {
		if !r.Status.Terminal() {
			allTerminal = false
		}
		if len(r.Images) > 0 {
			hasContent = true
		}
	}
	return allTerminal, hasContent
}

// VideoBatchCondition reduces a video batch to its autosave condition.
func VideoBatchCondition(results []generation.VideoResult) (allTerminal, hasContent bool) {
	if len(results) == 0 {
		return false, false
	}
	allTerminal = true
	for _, r := range results {
		if !r.Status.Terminal() {
			allTerminal = false
		}
		if r.Video != nil {
			hasContent = true
		}
	}
	return allTerminal, hasContent
}

// StreamBatchCondition reduces the active panels of a streaming mode to
// their autosave condition. Idle panels are not part of the batch.
func StreamBatchCondition(states []generation.StreamState) (allTerminal, hasContent bool) {
	active := 0
	allTerminal = true
	for _, s := range states {
		if s.Status == generation.StatusIdle {
			continue
		}
		active++
		if !s.Status.Terminal() {
			allTerminal = false
		}
		if s.Text != "" {
			hasContent = true
		}
	}
	if active == 0 {
		return false, false
	}
	return allTerminal, hasContent
}

// Package orchestrator drives generation batches against the API routes and
// publishes their lifecycle into UI-facing state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmelnik/lumen/pkg/panels"
	"github.com/dmelnik/lumen/pkg/stream"
)

// Streamer opens a streaming generation request.
type Streamer interface {
	Stream(ctx context.Context, path, prompt string) (<-chan stream.Event, error)
}

// TextRunner feeds one streaming generation into an aggregator panel. It
// serves the text, HTML and research modes; the mode only changes the route
// path and whether grounding records are expected.
type TextRunner struct {
	client Streamer
	agg    *panels.Aggregator
	path   string
}

// NewTextRunner creates a runner for the given route path.
func NewTextRunner(client Streamer, agg *panels.Aggregator, path string) *TextRunner {
	return &TextRunner{
		client: client,
		agg:    agg,
		path:   path,
	}
}

// Run submits prompt into panel index and blocks until the panel reaches a
// terminal state or is aborted. Cancellation through the panel's abort
// handle (or ctx) returns the panel to Idle and is not treated as an error.
func (r *TextRunner) Run(ctx context.Context, index int, prompt string) error {
	if prompt == "" {
		return fmt.Errorf("prompt cannot be empty")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.agg.Submit(index)
	r.agg.BindAbort(index, cancel)

	events, err := r.client.Stream(runCtx, r.path, prompt)
	if err != nil {
		if canceled(runCtx, err) {
			r.agg.Abort(index)
			return nil
		}
		r.agg.Fail(index, err.Error())
		return nil
	}

	for ev := range events {
		switch ev.Kind {
		case stream.EventDelta:
			r.agg.AppendDelta(index, ev.Delta)
		case stream.EventGrounding:
			r.agg.UpdateGrounding(index, ev.Grounding)
		case stream.EventDone:
			r.agg.MarkDone(index)
			return nil
		case stream.EventError:
			if canceled(runCtx, ev.Err) {
				r.agg.Abort(index)
				return nil
			}
			r.agg.Fail(index, ev.Err.Error())
			return nil
		}
	}

	// Natural end of stream without an explicit done record still finalizes.
	r.agg.MarkDone(index)
	return nil
}

func canceled(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || ctx.Err() != nil
}

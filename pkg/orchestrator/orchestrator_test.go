package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmelnik/lumen/pkg/generation"
	"github.com/dmelnik/lumen/pkg/panels"
	"github.com/dmelnik/lumen/pkg/stream"
	"github.com/dmelnik/lumen/pkg/veo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWindow = 10 * time.Millisecond

// fakeStreamer replays a scripted event sequence.
type fakeStreamer struct {
	events []stream.Event
	// hold keeps the stream open until ctx is cancelled.
	hold bool
	err  error
}

func (f *fakeStreamer) Stream(ctx context.Context, path, prompt string) (<-chan stream.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan stream.Event, len(f.events)+1)
	go func() {
		defer close(ch)
		for _, ev := range f.events {
			ch <- ev
		}
		if f.hold {
			<-ctx.Done()
			ch <- stream.Event{Kind: stream.EventError, Err: ctx.Err()}
		}
	}()
	return ch, nil
}

func TestTextRunner(t *testing.T) {
	t.Run("accumulates deltas and finalizes on done", func(t *testing.T) {
		agg := panels.New(testWindow)
		defer agg.Close()

		delta := func(s string) stream.Event { return stream.Event{Kind: stream.EventDelta, Delta: s} }
		client := &fakeStreamer{events: []stream.Event{
			delta("Hello"), delta(" there"), {Kind: stream.EventDone},
		}}

		runner := NewTextRunner(client, agg, "/api/stream")
		require.NoError(t, runner.Run(context.Background(), 0, "hi"))

		state := agg.Snapshot()[0]
		assert.Equal(t, generation.StatusDone, state.Status)
		assert.Equal(t, "Hello there", state.Text)
	})

	t.Run("finalizes on natural stream end without a done record", func(t *testing.T) {
		agg := panels.New(testWindow)
		defer agg.Close()

		client := &fakeStreamer{events: []stream.Event{
			{Kind: stream.EventDelta, Delta: "tail"},
		}}
		runner := NewTextRunner(client, agg, "/api/stream")
		require.NoError(t, runner.Run(context.Background(), 0, "hi"))

		state := agg.Snapshot()[0]
		assert.Equal(t, generation.StatusDone, state.Status)
		assert.Equal(t, "tail", state.Text)
	})

	t.Run("merges grounding metadata", func(t *testing.T) {
		agg := panels.New(testWindow)
		defer agg.Close()

		client := &fakeStreamer{events: []stream.Event{
			{Kind: stream.EventGrounding, Grounding: &stream.GroundingMetadata{
				Sources:       []generation.GroundingSource{{Title: "Ref", URI: "https://ref"}},
				SearchQueries: []string{"query"},
			}},
			{Kind: stream.EventDone},
		}}
		runner := NewTextRunner(client, agg, "/api/research")
		require.NoError(t, runner.Run(context.Background(), 2, "hi"))

		state := agg.Snapshot()[2]
		require.Len(t, state.Sources, 1)
		assert.Equal(t, "https://ref", state.Sources[0].URI)
		assert.Equal(t, []string{"query"}, state.SearchQueries)
	})

	t.Run("upstream error record fails the panel", func(t *testing.T) {
		agg := panels.New(testWindow)
		defer agg.Close()

		client := &fakeStreamer{events: []stream.Event{
			{Kind: stream.EventDelta, Delta: "part"},
			{Kind: stream.EventError, Err: errors.New("model unavailable")},
		}}
		runner := NewTextRunner(client, agg, "/api/stream")
		require.NoError(t, runner.Run(context.Background(), 0, "hi"))

		state := agg.Snapshot()[0]
		assert.Equal(t, generation.StatusError, state.Status)
		assert.Equal(t, "model unavailable", state.Error)
		assert.Equal(t, "part", state.Text)
	})

	t.Run("abort returns the panel to idle, not error", func(t *testing.T) {
		agg := panels.New(testWindow)
		defer agg.Close()

		client := &fakeStreamer{
			events: []stream.Event{{Kind: stream.EventDelta, Delta: "in flight"}},
			hold:   true,
		}
		runner := NewTextRunner(client, agg, "/api/stream")

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = runner.Run(context.Background(), 0, "hi")
		}()

		// Wait for the panel to go loading, then abort through its handle.
		require.Eventually(t, func() bool {
			return agg.Snapshot()[0].Status == generation.StatusLoading
		}, time.Second, time.Millisecond)
		agg.Abort(0)

		<-done
		assert.Equal(t, generation.StatusIdle, agg.Snapshot()[0].Status)
		assert.Empty(t, agg.Snapshot()[0].Error)
	})

	t.Run("transport failure on open fails the panel", func(t *testing.T) {
		agg := panels.New(testWindow)
		defer agg.Close()

		client := &fakeStreamer{err: errors.New("connection refused")}
		runner := NewTextRunner(client, agg, "/api/stream")
		require.NoError(t, runner.Run(context.Background(), 0, "hi"))

		state := agg.Snapshot()[0]
		assert.Equal(t, generation.StatusError, state.Status)
		assert.Contains(t, state.Error, "connection refused")
	})

	t.Run("empty prompt is rejected before any request", func(t *testing.T) {
		agg := panels.New(testWindow)
		defer agg.Close()

		runner := NewTextRunner(&fakeStreamer{}, agg, "/api/stream")
		assert.Error(t, runner.Run(context.Background(), 0, ""))
		assert.Equal(t, generation.StatusIdle, agg.Snapshot()[0].Status)
	})
}

// fakeImageGen records calls and can fail selected prompts.
type fakeImageGen struct {
	mu       sync.Mutex
	calls    []string
	failOn   map[string]error
	inFlight int
	maxSeen  int
}

func (f *fakeImageGen) GenerateImages(ctx context.Context, req stream.ImageRequest) (*stream.ImageResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Prompt)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if err, ok := f.failOn[req.Prompt]; ok {
		return nil, err
	}

	images := make([]generation.GeneratedImage, req.NumberOfImages)
	for i := range images {
		images[i] = generation.GeneratedImage{
			ImageBytes: []byte(req.Prompt),
			MimeType:   "image/png",
			Index:      i,
		}
	}
	return &stream.ImageResponse{Images: images}, nil
}

func TestImageRunner(t *testing.T) {
	t.Run("each non-empty line produces one in-order result", func(t *testing.T) {
		gen := &fakeImageGen{}
		var published [][]generation.ImageResult
		runner := NewImageRunner(gen, 2, func(results []generation.ImageResult) {
			published = append(published, results)
		})

		results := runner.Run(context.Background(), "cat\n\ndog")
		require.Len(t, results, 2)
		assert.Equal(t, "cat", results[0].Prompt)
		assert.Equal(t, "dog", results[1].Prompt)
		for _, r := range results {
			assert.Equal(t, generation.StatusDone, r.Status)
			assert.Len(t, r.Images, 2)
		}
		assert.Equal(t, []string{"cat", "dog"}, gen.calls)

		// Partial progress is visible: loading state published before each
		// item completes.
		require.GreaterOrEqual(t, len(published), 4)
		assert.Equal(t, generation.StatusLoading, published[0][0].Status)
		assert.Equal(t, generation.StatusDone, published[1][0].Status)
	})

	t.Run("items run strictly sequentially", func(t *testing.T) {
		gen := &fakeImageGen{}
		runner := NewImageRunner(gen, 1, nil)
		runner.Run(context.Background(), "a\nb\nc")
		assert.Equal(t, 1, gen.maxSeen)
		assert.Equal(t, []string{"a", "b", "c"}, gen.calls)
	})

	t.Run("one failure does not stop the batch", func(t *testing.T) {
		gen := &fakeImageGen{failOn: map[string]error{"dog": errors.New("safety block")}}
		runner := NewImageRunner(gen, 1, nil)

		results := runner.Run(context.Background(), "cat\ndog\nbird")
		require.Len(t, results, 3)
		assert.Equal(t, generation.StatusDone, results[0].Status)
		assert.Equal(t, generation.StatusError, results[1].Status)
		assert.Contains(t, results[1].Error, "safety block")
		assert.Equal(t, generation.StatusDone, results[2].Status)
	})

	t.Run("translation metadata is carried onto the item", func(t *testing.T) {
		gen := &translatingImageGen{}
		runner := NewImageRunner(gen, 1, nil)
		results := runner.Run(context.Background(), "кот")
		require.Len(t, results, 1)
		assert.True(t, results[0].WasTranslated)
		assert.True(t, results[0].HasSlavicPrompts)
		assert.Equal(t, "a cat", results[0].TranslatedPrompt)
	})

	t.Run("cancellation stops before the next item", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		gen := &fakeImageGen{}
		runner := NewImageRunner(gen, 1, nil)
		results := runner.Run(ctx, "a\nb")
		assert.Empty(t, results)
		assert.Empty(t, gen.calls)
	})
}

type translatingImageGen struct{}

func (translatingImageGen) GenerateImages(ctx context.Context, req stream.ImageRequest) (*stream.ImageResponse, error) {
	return &stream.ImageResponse{
		Images: []generation.GeneratedImage{{ImageBytes: []byte("img"), MimeType: "image/png"}},
		Translation: &generation.Translation{
			Original:         req.Prompt,
			Translated:       "a cat",
			Language:         "ru",
			WasTranslated:    true,
			HasSlavicPrompts: true,
		},
	}, nil
}

// fakeVideoAPI scripts the submit/poll/download cycle.
type fakeVideoAPI struct {
	mu           sync.Mutex
	pollsBefore  int // polls returning done:false before completion
	neverDone    bool
	polls        int
	downloads    int
	submitErr    error
	pollErrAfter int // when > 0, poll fails on this attempt
}

func (f *fakeVideoAPI) SubmitVideo(ctx context.Context, req stream.VideoRequest) (*stream.VideoOperation, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &stream.VideoOperation{Operation: "op-1"}, nil
}

func (f *fakeVideoAPI) PollOperation(ctx context.Context, operation string) (*stream.VideoStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErrAfter > 0 && f.polls >= f.pollErrAfter {
		return nil, errors.New("poll failed")
	}
	if f.neverDone || f.polls <= f.pollsBefore {
		return &stream.VideoStatus{Done: false}, nil
	}
	return &stream.VideoStatus{Done: true, VideoURI: "files/v1"}, nil
}

func (f *fakeVideoAPI) DownloadVideo(ctx context.Context, videoURI string) (*stream.VideoAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	return &stream.VideoAsset{VideoBytes: []byte("mp4"), MimeType: "video/mp4"}, nil
}

func newTestVideoRunner(api VideoAPI, publish PublishVideos) *VideoRunner {
	runner := NewVideoRunner(api, func([]byte) (time.Duration, error) {
		return 7900 * time.Millisecond, nil
	}, publish)
	runner.Selection = veo.Selection{
		Model:       veo.ModelV31,
		Resolution:  veo.Res720p,
		Duration:    veo.Duration8s,
		AspectRatio: veo.AspectWide,
	}
	runner.PollInterval = time.Millisecond
	return runner
}

func TestVideoRunner(t *testing.T) {
	t.Run("success on the final allowed poll downloads exactly once", func(t *testing.T) {
		api := &fakeVideoAPI{pollsBefore: 59}
		runner := newTestVideoRunner(api, nil)

		results := runner.Run(context.Background(), "a cat surfing")
		require.Len(t, results, 1)
		assert.Equal(t, generation.StatusDone, results[0].Status)
		assert.Equal(t, 60, api.polls)
		assert.Equal(t, 1, api.downloads)
	})

	t.Run("exceeding the poll bound times out before any download", func(t *testing.T) {
		api := &fakeVideoAPI{neverDone: true}
		runner := newTestVideoRunner(api, nil)

		results := runner.Run(context.Background(), "a cat surfing")
		require.Len(t, results, 1)
		assert.Equal(t, generation.StatusError, results[0].Status)
		assert.Contains(t, results[0].Error, ErrPollTimeout.Error())
		assert.Equal(t, 60, api.polls)
		assert.Zero(t, api.downloads)
	})

	t.Run("the measured duration replaces the requested one", func(t *testing.T) {
		api := &fakeVideoAPI{}
		runner := newTestVideoRunner(api, nil)

		results := runner.Run(context.Background(), "a cat surfing")
		require.Len(t, results, 1)
		require.NotNil(t, results[0].Video)
		assert.Equal(t, 7900*time.Millisecond, results[0].Video.Duration)
	})

	t.Run("paragraphs run sequentially with partial publication", func(t *testing.T) {
		api := &fakeVideoAPI{}
		var published [][]generation.VideoResult
		runner := newTestVideoRunner(api, func(results []generation.VideoResult) {
			published = append(published, results)
		})

		results := runner.Run(context.Background(), "first scene\n\nsecond scene")
		require.Len(t, results, 2)
		assert.Equal(t, "first scene", results[0].Prompt)
		assert.Equal(t, "second scene", results[1].Prompt)
		require.GreaterOrEqual(t, len(published), 4)
		assert.Len(t, published[1], 1)
		assert.Equal(t, generation.StatusDone, published[1][0].Status)
	})

	t.Run("a failed submit isolates the item", func(t *testing.T) {
		api := &fakeVideoAPI{submitErr: errors.New("invalid model")}
		runner := newTestVideoRunner(api, nil)

		results := runner.Run(context.Background(), "one\n\ntwo")
		require.Len(t, results, 2)
		for _, r := range results {
			assert.Equal(t, generation.StatusError, r.Status)
		}
		assert.Zero(t, api.downloads)
	})

	t.Run("cancellation stops the poll loop promptly", func(t *testing.T) {
		api := &fakeVideoAPI{neverDone: true}
		runner := newTestVideoRunner(api, nil)
		runner.PollInterval = 50 * time.Millisecond

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(75 * time.Millisecond)
			cancel()
		}()

		start := time.Now()
		results := runner.Run(ctx, "a cat")
		assert.Less(t, time.Since(start), time.Second)
		require.Len(t, results, 1)
		assert.Equal(t, generation.StatusError, results[0].Status)
		assert.Zero(t, api.downloads)
	})

	t.Run("the selection is clamped before submitting", func(t *testing.T) {
		api := &fakeVideoAPI{}
		var captured stream.VideoRequest
		runner := NewVideoRunner(&capturingVideoAPI{inner: api, captured: &captured}, nil, nil)
		runner.Selection = veo.Selection{
			Model:       veo.ModelV3,
			Resolution:  veo.Res1080p,
			Duration:    veo.Duration4s,
			AspectRatio: veo.AspectPortrait,
		}
		runner.PollInterval = time.Millisecond

		runner.Run(context.Background(), "scene")
		assert.Equal(t, 8, captured.DurationSeconds)
		assert.Equal(t, "16:9", captured.AspectRatio)
	})
}

type capturingVideoAPI struct {
	inner    VideoAPI
	captured *stream.VideoRequest
}

func (c *capturingVideoAPI) SubmitVideo(ctx context.Context, req stream.VideoRequest) (*stream.VideoOperation, error) {
	*c.captured = req
	return c.inner.SubmitVideo(ctx, req)
}

func (c *capturingVideoAPI) PollOperation(ctx context.Context, op string) (*stream.VideoStatus, error) {
	return c.inner.PollOperation(ctx, op)
}

func (c *capturingVideoAPI) DownloadVideo(ctx context.Context, uri string) (*stream.VideoAsset, error) {
	return c.inner.DownloadVideo(ctx, uri)
}

func TestAutosaver(t *testing.T) {
	t.Run("fires exactly once after the last terminal transition", func(t *testing.T) {
		saves := 0
		saver := NewAutosaver(func() { saves++ })

		const n = 4
		results := make([]generation.ImageResult, n)
		for i := range results {
			results[i] = generation.ImageResult{Status: generation.StatusLoading}
		}

		// Transition items one at a time, observing after each update the
		// way the session controller does.
		for i := 0; i < n; i++ {
			if i%2 == 0 {
				results[i].Status = generation.StatusDone
				results[i].Images = []generation.GeneratedImage{{ImageBytes: []byte("x")}}
			} else {
				results[i].Status = generation.StatusError
			}
			saver.Observe(ImageBatchCondition(results))
		}

		assert.Equal(t, 1, saves)

		// Further observations of the same completed batch stay silent.
		saver.Observe(ImageBatchCondition(results))
		saver.Observe(ImageBatchCondition(results))
		assert.Equal(t, 1, saves)
	})

	t.Run("re-arms when a new batch starts", func(t *testing.T) {
		saves := 0
		saver := NewAutosaver(func() { saves++ })

		done := []generation.ImageResult{{
			Status: generation.StatusDone,
			Images: []generation.GeneratedImage{{ImageBytes: []byte("x")}},
		}}
		saver.Observe(ImageBatchCondition(done))
		assert.Equal(t, 1, saves)

		// New batch begins: first update shows loading items.
		loading := []generation.ImageResult{{Status: generation.StatusLoading}}
		saver.Observe(ImageBatchCondition(loading))

		done2 := []generation.ImageResult{{
			Status: generation.StatusDone,
			Images: []generation.GeneratedImage{{ImageBytes: []byte("y")}},
		}}
		saver.Observe(ImageBatchCondition(done2))
		assert.Equal(t, 2, saves)
	})

	t.Run("a batch with no content is not saved", func(t *testing.T) {
		saves := 0
		saver := NewAutosaver(func() { saves++ })

		failed := []generation.ImageResult{
			{Status: generation.StatusError, Error: "blocked"},
			{Status: generation.StatusError, Error: "blocked"},
		}
		saver.Observe(ImageBatchCondition(failed))
		assert.Zero(t, saves)
	})

	t.Run("stream batches ignore idle panels", func(t *testing.T) {
		states := make([]generation.StreamState, generation.PanelsCount)
		for i := range states {
			states[i].Status = generation.StatusIdle
		}
		allTerminal, hasContent := StreamBatchCondition(states)
		assert.False(t, allTerminal)
		assert.False(t, hasContent)

		states[0] = generation.StreamState{Status: generation.StatusDone, Text: "result"}
		allTerminal, hasContent = StreamBatchCondition(states)
		assert.True(t, allTerminal)
		assert.True(t, hasContent)
	})

	t.Run("video batches need a produced asset to have content", func(t *testing.T) {
		results := []generation.VideoResult{{Status: generation.StatusError, Error: "x"}}
		allTerminal, hasContent := VideoBatchCondition(results)
		assert.True(t, allTerminal)
		assert.False(t, hasContent)

		results = append(results, generation.VideoResult{
			Status: generation.StatusDone,
			Video:  &generation.GeneratedVideo{VideoBytes: []byte("mp4")},
		})
		allTerminal, hasContent = VideoBatchCondition(results)
		assert.True(t, allTerminal)
		assert.True(t, hasContent)
	})
}

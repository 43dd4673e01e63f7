package telegram

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dmelnik/lumen/pkg/logger"
)

// DefaultTopPosts is how many posts a pipeline run reposts when unset.
const DefaultTopPosts = 3

// Result is the outcome for one selected post.
type Result struct {
	Post      Post
	Rewrite   Rewrite
	Published bool
	Err       error
}

// Pipeline reposts the best-performing source channel posts to a target
// channel: fetch, pick top posts by reactions, rewrite, illustrate, publish.
type Pipeline struct {
	fetch   PostFetcher
	rewrite Rewriter
	art     ArtGenerator
	publish Publisher

	// TopPosts caps how many posts one run processes.
	TopPosts int
	// Concurrency bounds parallel rewrite+art work. Zero means 2.
	Concurrency int
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(fetch PostFetcher, rewrite Rewriter, art ArtGenerator, publish Publisher) *Pipeline {
	return &Pipeline{
		fetch:    fetch,
		rewrite:  rewrite,
		art:      art,
		publish:  publish,
		TopPosts: DefaultTopPosts,
	}
}

// Run executes one pipeline pass. A post that fails to rewrite or publish is
// recorded in its Result and does not stop the others; only a fetch failure
// aborts the run.
func (p *Pipeline) Run(ctx context.Context, sourceChannel, targetChannel string) ([]Result, error) {
	posts, err := p.fetch.FetchChannelPosts(ctx, sourceChannel)
	if err != nil {
		return nil, fmt.Errorf("pipeline fetch failed: %w", err)
	}
	if len(posts) == 0 {
		return nil, nil
	}

	selected := topByReactions(posts, p.topPosts())
	results := make([]Result, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency())
	for i, post := range selected {
		g.Go(func() error {
			results[i] = p.processPost(gctx, targetChannel, post)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// processPost carries one post through rewrite, illustration and publish.
func (p *Pipeline) processPost(ctx context.Context, targetChannel string, post Post) Result {
	res := Result{Post: post}

	rw, err := p.rewrite.Rewrite(ctx, post.Text)
	if err != nil {
		res.Err = fmt.Errorf("rewrite failed for post %d: %w", post.ID, err)
		return res
	}
	res.Rewrite = rw

	var image []byte
	if rw.ImagePrompt != "" {
		img, _, err := p.art.GenerateArt(ctx, rw.ImagePrompt)
		if err != nil {
			// Publish text-only rather than dropping the post.
			logger.Warn("art generation failed for post %d: %v", post.ID, err)
		} else {
			image = img
		}
	}

	if err := p.publish.Publish(ctx, targetChannel, rw.CleanText, image); err != nil {
		res.Err = fmt.Errorf("publish failed for post %d: %w", post.ID, err)
		return res
	}

	res.Published = true
	return res
}

// topByReactions returns the n most-reacted posts, original order preserved
// among equals.
func topByReactions(posts []Post, n int) []Post {
	sorted := make([]Post, len(posts))
	copy(sorted, posts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ReactionCount > sorted[j].ReactionCount
	})
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

func (p *Pipeline) topPosts() int {
	if p.TopPosts <= 0 {
		return DefaultTopPosts
	}
	return p.TopPosts
}

func (p *Pipeline) concurrency() int {
	if p.Concurrency <= 0 {
		return 2
	}
	return p.Concurrency
}

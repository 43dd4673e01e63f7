// Package telegram implements the channel repost pipeline: fetch the
// best-performing posts from a source channel, rewrite them, illustrate them,
// and publish to a target channel.
package telegram

import "context"

// Post is one channel message with its audience response.
type Post struct {
	ID            int64
	Text          string
	ReactionCount int
}

// Rewrite is the rewriter's output for one post.
type Rewrite struct {
	CleanText   string `json:"cleanText"`
	ImagePrompt string `json:"imagePrompt"`
}

// PostFetcher retrieves recent posts from a channel.
type PostFetcher interface {
	FetchChannelPosts(ctx context.Context, channelID string) ([]Post, error)
}

// Rewriter turns a raw post into publishable text plus an art prompt.
type Rewriter interface {
	Rewrite(ctx context.Context, text string) (Rewrite, error)
}

// ArtGenerator produces one illustration for a prompt.
type ArtGenerator interface {
	GenerateArt(ctx context.Context, prompt string) ([]byte, string, error)
}

// Publisher posts rewritten content to a channel.
type Publisher interface {
	Publish(ctx context.Context, channelID, text string, image []byte) error
}

package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"
)

// Match is one semantic search hit over saved prompts
type Match struct {
	ItemID     string
	Prompt     string
	Mode       string
	Similarity float32
}

// SearchIndex maintains an in-memory vector index over saved prompts so
// `history search` can find past generations by meaning rather than
// substring. The embedding function is injected; production wires the
// Gemini embedding model, tests use a deterministic fake.
type SearchIndex struct {
	mu  sync.Mutex
	col *chromem.Collection
}

// NewSearchIndex creates an index backed by the given embedding function.
func NewSearchIndex(embed chromem.EmbeddingFunc) (*SearchIndex, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection("prompts", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create prompt collection: %w", err)
	}
	return &SearchIndex{col: col}, nil
}

// Add indexes one saved item's prompt.
func (s *SearchIndex) Add(ctx context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.col.AddDocument(ctx, chromem.Document{
		ID:      item.ID,
		Content: item.Prompt,
		Metadata: map[string]string{
			"mode": item.Mode,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to index prompt: %w", err)
	}
	return nil
}

// AddAll indexes a batch of items, typically on startup from Store.Load.
func (s *SearchIndex) AddAll(ctx context.Context, items []Item) error {
	for _, item := range items {
		if err := s.Add(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// Search returns up to k prompts most similar to query, best first.
func (s *SearchIndex) Search(ctx context.Context, query string, k int) ([]Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := s.col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("prompt search failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			ItemID:     r.ID,
			Prompt:     r.Content,
			Mode:       r.Metadata["mode"],
			Similarity: r.Similarity,
		})
	}
	return matches, nil
}

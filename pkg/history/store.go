// Package history persists completed generation batches and loads them back
// for session restore. Storage is sqlite through gorm; results are kept as a
// JSON document since their shape varies by mode.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmelnik/lumen/pkg/generation"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultLimit caps how many items are kept per (mode, model).
const DefaultLimit = 50

// Item is one saved generation batch
type Item struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Prompt    string    `json:"prompt"`
	Mode      string    `gorm:"index:idx_mode_model" json:"mode"`
	Model     string    `gorm:"index:idx_mode_model" json:"model,omitempty"`
	Results   []byte    `gorm:"type:text" json:"results"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

// TableName keeps the table name stable regardless of pluralization rules.
func (Item) TableName() string { return "history_items" }

// DecodeResults unmarshals the item's results into out, which should be a
// pointer to []generation.StreamState, []generation.ImageResult or
// []generation.VideoResult depending on the item's mode.
func (i Item) DecodeResults(out any) error {
	if err := json.Unmarshal(i.Results, out); err != nil {
		return fmt.Errorf("failed to decode history results: %w", err)
	}
	return nil
}

// Store is the persistence bridge the session controller saves through.
type Store interface {
	Load(mode generation.Mode, model string) ([]Item, error)
	Save(prompt string, mode generation.Mode, model string, results any) (Item, error)
	Delete(id string) error
	Clear(mode generation.Mode, model string) error
}

// GormStore implements Store on a sqlite database.
type GormStore struct {
	db    *gorm.DB
	limit int
}

// Open creates (or opens) the sqlite database at path and migrates the
// schema.
func Open(path string, limit int) (*GormStore, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.AutoMigrate(&Item{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}

	return &GormStore{db: db, limit: limit}, nil
}

// Load returns saved items for the mode (and model, when non-empty),
// newest first, capped at the store limit.
func (s *GormStore) Load(mode generation.Mode, model string) ([]Item, error) {
	var items []Item
	q := s.db.Where("mode = ?", string(mode))
	if model != "" {
		q = q.Where("model = ?", model)
	}
	if err := q.Order("created_at DESC").Limit(s.limit).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return items, nil
}

// Save persists one completed batch and evicts the oldest items beyond the
// per-(mode, model) cap.
func (s *GormStore) Save(prompt string, mode generation.Mode, model string, results any) (Item, error) {
	payload, err := json.Marshal(results)
	if err != nil {
		return Item{}, fmt.Errorf("failed to encode results: %w", err)
	}

	item := Item{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Mode:      string(mode),
		Model:     model,
		Results:   payload,
		CreatedAt: time.Now(),
	}
	if err := s.db.Create(&item).Error; err != nil {
		return Item{}, fmt.Errorf("failed to save history item: %w", err)
	}

	if err := s.evict(mode, model); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Delete removes one item by ID.
func (s *GormStore) Delete(id string) error {
	if err := s.db.Delete(&Item{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete history item: %w", err)
	}
	return nil
}

// Clear removes every item for the mode (and model, when non-empty).
func (s *GormStore) Clear(mode generation.Mode, model string) error {
	q := s.db.Where("mode = ?", string(mode))
	if model != "" {
		q = q.Where("model = ?", model)
	}
	if err := q.Delete(&Item{}).Error; err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// evict drops the oldest items past the cap for one (mode, model) bucket.
func (s *GormStore) evict(mode generation.Mode, model string) error {
	var keep []string
	q := s.db.Model(&Item{}).Where("mode = ?", string(mode))
	if model != "" {
		q = q.Where("model = ?", model)
	}
	if err := q.Order("created_at DESC").Limit(s.limit).Pluck("id", &keep).Error; err != nil {
		return fmt.Errorf("failed to list retained history: %w", err)
	}
	if len(keep) < s.limit {
		return nil
	}

	del := s.db.Where("mode = ?", string(mode))
	if model != "" {
		del = del.Where("model = ?", model)
	}
	if err := del.Where("id NOT IN ?", keep).Delete(&Item{}).Error; err != nil {
		return fmt.Errorf("failed to evict history: %w", err)
	}
	return nil
}

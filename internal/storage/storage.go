package storage

import (
	"context"
	"time"

	"github.com/chis/embedlab/internal/codec"
)

// Challenge is a catalog entry: an assignment addressed by category and id.
type Challenge struct {
	Category   string           `json:"category"`
	ID         string           `json:"id"`
	Assignment codec.Assignment `json:"assignment"`
	SourcePath string           `json:"source_path,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// ChallengeSummary is the listing view of a challenge.
type ChallengeSummary struct {
	Category    string    `json:"category"`
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	MaxScore    int       `json:"max_score"`
	FileCount   int       `json:"file_count"`
	PreviewType string    `json:"preview_type"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CategorySummary counts the challenges in a category.
type CategorySummary struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Storage is the challenge catalog store.
type Storage interface {
	// SaveChallenge inserts or replaces a challenge.
	SaveChallenge(ctx context.Context, ch Challenge) error

	// GetChallenge returns found=false when no such challenge exists.
	GetChallenge(ctx context.Context, category, id string) (ch Challenge, found bool, err error)

	// ListChallenges returns the challenges of one category ordered by id.
	// An empty category lists every challenge ordered by category, then id.
	ListChallenges(ctx context.Context, category string) ([]ChallengeSummary, error)

	// ListCategories returns categories ordered by name.
	ListCategories(ctx context.Context) ([]CategorySummary, error)

	// DeleteChallenge returns false when nothing was deleted.
	DeleteChallenge(ctx context.Context, category, id string) (bool, error)

	Close() error
}

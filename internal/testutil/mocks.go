// Package testutil provides shared fixtures and a configurable in-memory
// storage for embedlab tests.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/chis/embedlab/internal/codec"
	"github.com/chis/embedlab/internal/storage"
	"github.com/chis/embedlab/internal/vfs"
)

// Common test errors for use in mocks
var (
	ErrMockUnavailable = errors.New("service unavailable")
	ErrMockDatabase    = errors.New("database error")
)

// NewAssignment creates a valid assignment whose files are named in order;
// the first is the main file.
func NewAssignment(title string, filenames ...string) codec.Assignment {
	files := make([]vfs.FileRecord, 0, len(filenames))
	for _, name := range filenames {
		files = append(files, vfs.FileRecord{Filename: name, Autoreload: true, Content: "// " + name})
	}
	a := codec.Assignment{Title: title, Files: files, PreviewType: "html"}
	if len(files) > 0 {
		a.MainFile = files[0].Filename
	}
	return a
}

// NewChallenge creates a catalog challenge for testing.
func NewChallenge(category, id string) storage.Challenge {
	return storage.Challenge{
		Category:   category,
		ID:         id,
		Assignment: NewAssignment(category+"/"+id, "index.html", "script.js"),
		UpdatedAt:  time.Now(),
	}
}

// MockStorage is an in-memory storage.Storage. Setting Err makes every
// method fail with it.
type MockStorage struct {
	mu         sync.Mutex
	challenges map[string]storage.Challenge
	Err        error
}

var _ storage.Storage = (*MockStorage)(nil)

// NewMockStorage creates a MockStorage holding challenges.
func NewMockStorage(challenges ...storage.Challenge) *MockStorage {
	m := &MockStorage{challenges: make(map[string]storage.Challenge)}
	for _, ch := range challenges {
		m.challenges[ch.Category+"/"+ch.ID] = ch
	}
	return m
}

func (m *MockStorage) SaveChallenge(ctx context.Context, ch storage.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.challenges[ch.Category+"/"+ch.ID] = ch
	return nil
}

func (m *MockStorage) GetChallenge(ctx context.Context, category, id string) (storage.Challenge, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return storage.Challenge{}, false, m.Err
	}
	ch, ok := m.challenges[category+"/"+id]
	return ch, ok, nil
}

func (m *MockStorage) ListChallenges(ctx context.Context, category string) ([]storage.ChallengeSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	out := make([]storage.ChallengeSummary, 0, len(m.challenges))
	for _, ch := range m.challenges {
		if category != "" && ch.Category != category {
			continue
		}
		out = append(out, storage.ChallengeSummary{
			Category:    ch.Category,
			ID:          ch.ID,
			Title:       ch.Assignment.Title,
			MaxScore:    ch.Assignment.MaxScore,
			FileCount:   len(ch.Assignment.Files),
			PreviewType: ch.Assignment.PreviewType,
			UpdatedAt:   ch.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MockStorage) ListCategories(ctx context.Context) ([]storage.CategorySummary, error) {
	list, err := m.ListChallenges(ctx, "")
	if err != nil {
		return nil, err
	}

	out := make([]storage.CategorySummary, 0)
	for _, cs := range list {
		if n := len(out); n > 0 && out[n-1].Name == cs.Category {
			out[n-1].Count++
			continue
		}
		out = append(out, storage.CategorySummary{Name: cs.Category, Count: 1})
	}
	return out, nil
}

func (m *MockStorage) DeleteChallenge(ctx context.Context, category, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	key := category + "/" + id
	_, ok := m.challenges[key]
	delete(m.challenges, key)
	return ok, nil
}

func (m *MockStorage) Close() error {
	return nil
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/storage"
)

// Store is an in-memory usage ledger.
type Store struct {
	mu      sync.RWMutex
	records map[string]*storage.CompletionRecord
}

var _ storage.UsageStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		records: make(map[string]*storage.CompletionRecord),
	}
}

func (s *Store) SaveCompletion(ctx context.Context, rec *storage.CompletionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("completion %s already exists", rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *Store) GetCompletion(ctx context.Context, id string) (*storage.CompletionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, fmt.Errorf("completion %s: %w", id, storage.ErrNotFound)
	}

	cp := *rec
	return &cp, nil
}

func (s *Store) ListCompletions(ctx context.Context, opts storage.ListOptions) ([]*storage.CompletionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.CompletionRecord
	for _, rec := range s.records {
		if opts.Deployment != "" && rec.Deployment != opts.Deployment {
			continue
		}
		cp := *rec
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return storage.Page(result, opts), nil
}

func (s *Store) Close() error {
	return nil
}

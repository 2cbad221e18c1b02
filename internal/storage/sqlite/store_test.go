package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/storage"
)

func newTestStore(t *testing.T, name string) *Store {
	t.Helper()
	// Use in-memory SQLite with shared cache for testing
	store, err := New(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t, "ledger1")
	ctx := context.Background()

	rec := &storage.CompletionRecord{
		ID:                "chatcmpl-1",
		Deployment:        "claude-v2",
		Streaming:         true,
		Choices:           2,
		PromptTokens:      120,
		CompletionTokens:  40,
		DiscardedMessages: 3,
		FinishReason:      "stop",
		DurationMs:        250,
	}
	if err := store.SaveCompletion(ctx, rec); err != nil {
		t.Fatalf("SaveCompletion() error = %v", err)
	}

	got, err := store.GetCompletion(ctx, "chatcmpl-1")
	if err != nil {
		t.Fatalf("GetCompletion() error = %v", err)
	}

	if got.Deployment != rec.Deployment || !got.Streaming || got.Choices != 2 {
		t.Errorf("unexpected record %+v", got)
	}
	if got.PromptTokens != 120 || got.CompletionTokens != 40 || got.DiscardedMessages != 3 {
		t.Errorf("unexpected usage %+v", got)
	}
	if got.FinishReason != "stop" || got.Error != "" {
		t.Errorf("FinishReason/Error = %q/%q", got.FinishReason, got.Error)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := newTestStore(t, "ledger2")

	_, err := store.GetCompletion(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetCompletion() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_List(t *testing.T) {
	store := newTestStore(t, "ledger3")
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, dep := range []string{"a", "b", "a", "a"} {
		rec := &storage.CompletionRecord{
			ID:         fmt.Sprintf("rec-%d", i),
			Deployment: dep,
			Error:      "",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.SaveCompletion(ctx, rec); err != nil {
			t.Fatalf("SaveCompletion() error = %v", err)
		}
	}

	all, err := store.ListCompletions(ctx, storage.ListOptions{})
	if err != nil {
		t.Fatalf("ListCompletions() error = %v", err)
	}
	if len(all) != 4 || all[0].ID != "rec-3" {
		t.Fatalf("expected newest first, got %d records starting with %q", len(all), all[0].ID)
	}

	page, err := store.ListCompletions(ctx, storage.ListOptions{Deployment: "a", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListCompletions() error = %v", err)
	}
	if len(page) != 2 || page[0].ID != "rec-2" || page[1].ID != "rec-0" {
		t.Errorf("unexpected page %v", ids(page))
	}
}

func ids(recs []*storage.CompletionRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

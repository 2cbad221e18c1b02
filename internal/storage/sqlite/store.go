package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/storage"
)

// Store is a SQLite usage ledger.
type Store struct {
	db *sql.DB
}

var _ storage.UsageStore = (*Store)(nil)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS completions (
			id TEXT PRIMARY KEY,
			deployment TEXT NOT NULL,
			streaming INTEGER NOT NULL DEFAULT 0,
			choices INTEGER NOT NULL DEFAULT 1,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			discarded_messages INTEGER NOT NULL DEFAULT 0,
			finish_reason TEXT,
			error TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_completions_deployment ON completions(deployment)`,
		`CREATE INDEX IF NOT EXISTS idx_completions_created ON completions(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) SaveCompletion(ctx context.Context, rec *storage.CompletionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `INSERT INTO completions (id, deployment, streaming, choices, prompt_tokens,
	              completion_tokens, discarded_messages, finish_reason, error, duration_ms, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Deployment, rec.Streaming, rec.Choices, rec.PromptTokens,
		rec.CompletionTokens, rec.DiscardedMessages, nullString(rec.FinishReason),
		nullString(rec.Error), rec.DurationMs, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save completion: %w", err)
	}

	return nil
}

const selectColumns = `SELECT id, deployment, streaming, choices, prompt_tokens, completion_tokens,
	discarded_messages, finish_reason, error, duration_ms, created_at FROM completions`

func (s *Store) GetCompletion(ctx context.Context, id string) (*storage.CompletionRecord, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("completion %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get completion: %w", err)
	}
	return rec, nil
}

func (s *Store) ListCompletions(ctx context.Context, opts storage.ListOptions) ([]*storage.CompletionRecord, error) {
	query := selectColumns
	var args []any
	if opts.Deployment != "" {
		query += ` WHERE deployment = ?`
		args = append(args, opts.Deployment)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // no limit
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	defer rows.Close()

	var result []*storage.CompletionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		result = append(result, rec)
	}

	return result, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*storage.CompletionRecord, error) {
	var rec storage.CompletionRecord
	var finish, errText sql.NullString

	err := row.Scan(&rec.ID, &rec.Deployment, &rec.Streaming, &rec.Choices, &rec.PromptTokens,
		&rec.CompletionTokens, &rec.DiscardedMessages, &finish, &errText, &rec.DurationMs, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	rec.FinishReason = finish.String
	rec.Error = errText.String
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

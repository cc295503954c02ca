package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"adconsole/internal/api"
)

var ErrNotFound = errors.New("not found")

// ReplaceActions swaps the cached list for the server's authoritative one.
// The swap is transactional so a crash never leaves a half-written cache.
func (s *Store) ReplaceActions(ctx context.Context, actions []api.PromptAction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace actions: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	delStr, delArgs, err := s.sql.Delete("actions").ToSql()
	if err != nil {
		return fmt.Errorf("build actions delete query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, delStr, delArgs...); err != nil {
		return fmt.Errorf("clear actions: %w", err)
	}

	for _, a := range actions {
		q := s.sql.Insert("actions").
			Columns("id", "prompt_name", "prompt_version", "user_message", "output", "tokens_used", "model", "created_at").
			Values(a.ID, a.PromptName, a.PromptVersion, a.UserMessage, a.Output, a.TokensUsed, a.Model, a.CreatedAt)
		sqlStr, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build action insert query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("insert action %d: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace actions: %w", err)
	}
	return nil
}

func (s *Store) ListActions(ctx context.Context) ([]api.PromptAction, error) {
	q := s.sql.Select("id", "prompt_name", "prompt_version", "user_message", "output", "tokens_used", "model", "created_at").
		From("actions").
		OrderBy("created_at DESC", "id DESC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list actions query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	out := make([]api.PromptAction, 0)
	for rows.Next() {
		var a api.PromptAction
		if err := rows.Scan(&a.ID, &a.PromptName, &a.PromptVersion, &a.UserMessage, &a.Output, &a.TokensUsed, &a.Model, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action rows: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteAction(ctx context.Context, id int64) error {
	q := s.sql.Delete("actions").Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete action query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetAction(ctx context.Context, id int64) (api.PromptAction, error) {
	q := s.sql.Select("id", "prompt_name", "prompt_version", "user_message", "output", "tokens_used", "model", "created_at").
		From("actions").
		Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return api.PromptAction{}, fmt.Errorf("build get action query: %w", err)
	}

	var a api.PromptAction
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&a.ID, &a.PromptName, &a.PromptVersion, &a.UserMessage, &a.Output, &a.TokensUsed, &a.Model, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.PromptAction{}, ErrNotFound
		}
		return api.PromptAction{}, fmt.Errorf("get action: %w", err)
	}
	return a, nil
}

func (s *Store) UpsertMedia(ctx context.Context, item api.MediaItem) error {
	q := s.sql.Insert("media_items").
		Columns("id", "url", "mime_type", "filename", "size_bytes", "uploaded_at", "external_id").
		Values(item.ID, item.URL, item.MimeType, item.Filename, item.SizeBytes, item.UploadedAt, item.ExternalID).
		Suffix("ON CONFLICT(id) DO UPDATE SET url=excluded.url, mime_type=excluded.mime_type, filename=excluded.filename, size_bytes=excluded.size_bytes, uploaded_at=excluded.uploaded_at, external_id=excluded.external_id")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build media upsert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upsert media item: %w", err)
	}
	return nil
}

func (s *Store) UpsertMediaAll(ctx context.Context, items []api.MediaItem) error {
	for _, item := range items {
		if err := s.UpsertMedia(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// ListMedia returns cached items newest-upload first, matching grid order.
func (s *Store) ListMedia(ctx context.Context) ([]api.MediaItem, error) {
	q := s.sql.Select("id", "url", "mime_type", "filename", "size_bytes", "uploaded_at", "external_id").
		From("media_items").
		OrderBy("uploaded_at DESC", "id DESC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list media query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	out := make([]api.MediaItem, 0)
	for rows.Next() {
		var m api.MediaItem
		if err := rows.Scan(&m.ID, &m.URL, &m.MimeType, &m.Filename, &m.SizeBytes, &m.UploadedAt, &m.ExternalID); err != nil {
			return nil, fmt.Errorf("scan media row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media rows: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteMedia(ctx context.Context, id string) error {
	q := s.sql.Delete("media_items").Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete media query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete media item: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

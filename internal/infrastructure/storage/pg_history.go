package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"plate-mask/internal/domain/entity"
	"plate-mask/internal/domain/port"
)

const createHistoryTable = `
CREATE TABLE IF NOT EXISTS artifact_history (
	seq        BIGSERIAL PRIMARY KEY,
	filename   TEXT NOT NULL UNIQUE,
	path       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

// PgHistoryIndex индекс истории в PostgreSQL. Порядок задаёт seq.
type PgHistoryIndex struct {
	db *sql.DB
}

// OpenPgHistoryIndex подключается к базе и создаёт таблицу при необходимости
func OpenPgHistoryIndex(ctx context.Context, dsn string) (*PgHistoryIndex, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createHistoryTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate artifact_history: %w", err)
	}
	return &PgHistoryIndex{db: db}, nil
}

// Append добавляет запись
func (p *PgHistoryIndex) Append(ctx context.Context, artifact entity.Artifact) error {
	const q = `INSERT INTO artifact_history (filename, path, created_at) VALUES ($1, $2, $3)`
	if _, err := p.db.ExecContext(ctx, q, artifact.Filename, artifact.Path, artifact.CreatedAt); err != nil {
		return fmt.Errorf("insert %s: %w", artifact.Filename, err)
	}
	return nil
}

// Lookup ищет артефакт по имени
func (p *PgHistoryIndex) Lookup(ctx context.Context, filename string) (entity.Artifact, error) {
	const q = `SELECT filename, path, created_at FROM artifact_history WHERE filename = $1`
	var a entity.Artifact
	err := p.db.QueryRowContext(ctx, q, filename).Scan(&a.Filename, &a.Path, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Artifact{}, fmt.Errorf("artifact %s: %w", filename, entity.ErrNotFound)
	}
	if err != nil {
		return entity.Artifact{}, fmt.Errorf("select %s: %w", filename, err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

// List возвращает все записи в порядке добавления
func (p *PgHistoryIndex) List(ctx context.Context) ([]entity.Artifact, error) {
	const q = `SELECT filename, path, created_at FROM artifact_history ORDER BY seq`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	var out []entity.Artifact
	for rows.Next() {
		var a entity.Artifact
		if err := rows.Scan(&a.Filename, &a.Path, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// Len возвращает число записей
func (p *PgHistoryIndex) Len(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM artifact_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// Remove удаляет запись
func (p *PgHistoryIndex) Remove(ctx context.Context, filename string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM artifact_history WHERE filename = $1`, filename)
	if err != nil {
		return fmt.Errorf("delete %s: %w", filename, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", filename, err)
	}
	if n == 0 {
		return fmt.Errorf("artifact %s: %w", filename, entity.ErrNotFound)
	}
	return nil
}

// Close закрывает пул соединений
func (p *PgHistoryIndex) Close() error {
	return p.db.Close()
}

var _ port.HistoryIndex = (*PgHistoryIndex)(nil)

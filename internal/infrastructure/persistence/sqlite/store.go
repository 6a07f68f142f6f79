// Package sqlite provides the default local document store backed by
// modernc.org/sqlite. Schema changes are embedded goose migrations.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/persistence/document"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// dsnPragmas is applied by the driver to every new connection.
const dsnPragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"

// Store persists documents in a single SQLite file.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	sqlDB, err := sql.Open("sqlite", filepath.Clean(path)+"?"+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer; a single connection queues saves from
	// different learners instead of failing them with SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func migrate(ctx context.Context, sqlDB *sql.DB) error {
	fsys, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, sqlDB, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Get reads one document.
func (s *Store) Get(ctx context.Context, kind document.Kind, userID string) (document.Document, error) {
	if err := ctx.Err(); err != nil {
		return document.Document{}, err
	}
	var (
		version   int
		body      string
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT version, body, updated_at FROM documents WHERE kind = ? AND user_id = ?`,
		string(kind), userID,
	).Scan(&version, &body, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, document.NotFound(kind, userID)
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("get %s document: %w", kind, err)
	}
	return document.Document{
		Kind:      kind,
		UserID:    userID,
		Version:   version,
		Body:      []byte(body),
		UpdatedAt: fromMillis(updatedAt),
	}, nil
}

// Put inserts or replaces one document.
func (s *Store) Put(ctx context.Context, doc document.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(doc.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO documents (kind, user_id, version, body, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (kind, user_id) DO UPDATE SET
		   version = excluded.version,
		   body = excluded.body,
		   updated_at = excluded.updated_at`,
		string(doc.Kind), doc.UserID, doc.Version, string(doc.Body), toMillis(doc.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put %s document: %w", doc.Kind, err)
	}
	return nil
}

// Delete removes one document. Missing documents are ignored.
func (s *Store) Delete(ctx context.Context, kind document.Kind, userID string) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM documents WHERE kind = ? AND user_id = ?`, string(kind), userID,
	); err != nil {
		return fmt.Errorf("delete %s document: %w", kind, err)
	}
	return nil
}

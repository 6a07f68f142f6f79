package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/persistence/document"
)

// DocumentStore implements document.Store over the documents table.
type DocumentStore struct {
	conn *Connection
}

// NewDocumentStore wraps an open connection. Run the Migrator first.
func NewDocumentStore(conn *Connection) *DocumentStore {
	return &DocumentStore{conn: conn}
}

// Open connects, migrates and returns a ready store.
func Open(ctx context.Context, databaseURL string, opts PoolOptions) (*DocumentStore, error) {
	conn, err := NewConnectionFromURL(ctx, databaseURL, opts)
	if err != nil {
		return nil, err
	}
	if err := NewMigrator(conn).Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return NewDocumentStore(conn), nil
}

// Connection exposes the pool for health reporting.
func (s *DocumentStore) Connection() *Connection { return s.conn }

func (s *DocumentStore) Get(ctx context.Context, kind document.Kind, userID string) (document.Document, error) {
	q, err := s.conn.querier()
	if err != nil {
		return document.Document{}, err
	}

	var (
		version   int
		body      []byte
		updatedAt time.Time
	)
	err = q.QueryRow(ctx,
		`SELECT version, body, updated_at FROM documents WHERE kind = $1 AND user_id = $2`,
		string(kind), userID,
	).Scan(&version, &body, &updatedAt)
	if IsNoRows(err) {
		return document.Document{}, document.NotFound(kind, userID)
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("postgres: get %s document: %w", kind, err)
	}

	return document.Document{
		Kind:      kind,
		UserID:    userID,
		Version:   version,
		Body:      body,
		UpdatedAt: updatedAt.UTC(),
	}, nil
}

func (s *DocumentStore) Put(ctx context.Context, doc document.Document) error {
	q, err := s.conn.querier()
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO documents (kind, user_id, version, body, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (kind, user_id) DO UPDATE SET
			version = EXCLUDED.version,
			body = EXCLUDED.body,
			updated_at = EXCLUDED.updated_at
	`, string(doc.Kind), doc.UserID, doc.Version, string(doc.Body), doc.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("postgres: put %s document: %w", doc.Kind, err)
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, kind document.Kind, userID string) error {
	q, err := s.conn.querier()
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, `DELETE FROM documents WHERE kind = $1 AND user_id = $2`, string(kind), userID); err != nil {
		return fmt.Errorf("postgres: delete %s document: %w", kind, err)
	}
	return nil
}

func (s *DocumentStore) Ping(ctx context.Context) error { return s.conn.Ping(ctx) }

func (s *DocumentStore) Close() error {
	s.conn.Close()
	return nil
}

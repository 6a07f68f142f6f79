// Package document maps the domain repositories onto a small versioned
// JSON document store. Every backend (sqlite, postgres, redis, memory)
// implements Store; the typed repositories live here so the encoding is
// identical across backends.
package document

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/entitlement"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/progression"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE PORT
// ══════════════════════════════════════════════════════════════════════════════

// Kind names the document family. One document per (kind, user).
type Kind string

const (
	KindProgression  Kind = "progression"
	KindEntitlements Kind = "entitlements"
)

// Document is one persisted record.
type Document struct {
	Kind      Kind
	UserID    string
	Version   int
	Body      []byte
	UpdatedAt time.Time
}

// Store is implemented by every storage backend. Get returns an error
// matching shared.ErrNotFound when the document does not exist.
type Store interface {
	Get(ctx context.Context, kind Kind, userID string) (Document, error)
	Put(ctx context.Context, doc Document) error
	Delete(ctx context.Context, kind Kind, userID string) error
	Ping(ctx context.Context) error
	Close() error
}

// NotFound builds the error backends return for a missing document.
func NotFound(kind Kind, userID string) error {
	return shared.NewDomainError("document", "Get", shared.ErrNotFound,
		fmt.Sprintf("%s document for %q not found", kind, userID))
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionRepository stores progression.Record as JSON.
type ProgressionRepository struct {
	store Store
	now   func() time.Time
}

// NewProgressionRepository wraps store.
func NewProgressionRepository(store Store) *ProgressionRepository {
	return &ProgressionRepository{store: store, now: time.Now}
}

func (r *ProgressionRepository) Load(ctx context.Context, userID string) (*progression.Record, error) {
	var rec progression.Record
	if err := load(ctx, r.store, KindProgression, userID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ProgressionRepository) Save(ctx context.Context, userID string, rec *progression.Record) error {
	return save(ctx, r.store, KindProgression, userID, rec.Version, rec, r.now())
}

// EntitlementRepository stores entitlement.Record as JSON.
type EntitlementRepository struct {
	store Store
	now   func() time.Time
}

// NewEntitlementRepository wraps store.
func NewEntitlementRepository(store Store) *EntitlementRepository {
	return &EntitlementRepository{store: store, now: time.Now}
}

func (r *EntitlementRepository) Load(ctx context.Context, userID string) (*entitlement.Record, error) {
	var rec entitlement.Record
	if err := load(ctx, r.store, KindEntitlements, userID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *EntitlementRepository) Save(ctx context.Context, userID string, rec *entitlement.Record) error {
	return save(ctx, r.store, KindEntitlements, userID, rec.Version, rec, r.now())
}

func load(ctx context.Context, store Store, kind Kind, userID string, dest any) error {
	doc, err := store.Get(ctx, kind, userID)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc.Body, dest); err != nil {
		return fmt.Errorf("decode %s document: %w", kind, err)
	}
	return nil
}

func save(ctx context.Context, store Store, kind Kind, userID string, version int, rec any, now time.Time) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", kind, err)
	}
	return store.Put(ctx, Document{
		Kind:      kind,
		UserID:    userID,
		Version:   version,
		Body:      body,
		UpdatedAt: now.UTC(),
	})
}

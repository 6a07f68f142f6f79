package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/persistence/document"
)

const (
	fieldVersion   = "version"
	fieldBody      = "body"
	fieldUpdatedAt = "updated_at"
)

// DocumentStore keeps each document in a hash at {prefix}doc:{kind}:{user}.
type DocumentStore struct {
	client *Client
}

// NewDocumentStore wraps a connected client.
func NewDocumentStore(client *Client) *DocumentStore {
	return &DocumentStore{client: client}
}

func (s *DocumentStore) key(kind document.Kind, userID string) (string, error) {
	return s.client.Key("doc", string(kind), userID)
}

func (s *DocumentStore) Get(ctx context.Context, kind document.Kind, userID string) (document.Document, error) {
	key, err := s.key(kind, userID)
	if err != nil {
		return document.Document{}, err
	}

	fields, err := s.client.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return document.Document{}, fmt.Errorf("redis: get %s document: %w", kind, err)
	}
	if len(fields) == 0 {
		return document.Document{}, document.NotFound(kind, userID)
	}

	version, err := strconv.Atoi(fields[fieldVersion])
	if err != nil {
		return document.Document{}, fmt.Errorf("redis: %s document version: %w", kind, err)
	}
	millis, err := strconv.ParseInt(fields[fieldUpdatedAt], 10, 64)
	if err != nil {
		return document.Document{}, fmt.Errorf("redis: %s document timestamp: %w", kind, err)
	}

	return document.Document{
		Kind:      kind,
		UserID:    userID,
		Version:   version,
		Body:      []byte(fields[fieldBody]),
		UpdatedAt: time.UnixMilli(millis).UTC(),
	}, nil
}

// Put replaces the hash atomically.
func (s *DocumentStore) Put(ctx context.Context, doc document.Document) error {
	key, err := s.key(doc.Kind, doc.UserID)
	if err != nil {
		return err
	}

	_, err = s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldVersion, doc.Version,
			fieldBody, string(doc.Body),
			fieldUpdatedAt, doc.UpdatedAt.UTC().UnixMilli(),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: put %s document: %w", doc.Kind, err)
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, kind document.Kind, userID string) error {
	key, err := s.key(kind, userID)
	if err != nil {
		return err
	}
	if err := s.client.rdb.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: delete %s document: %w", kind, err)
	}
	return nil
}

func (s *DocumentStore) Ping(ctx context.Context) error { return s.client.Ping(ctx) }

func (s *DocumentStore) Close() error { return s.client.Close() }

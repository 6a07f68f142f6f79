// Package memory provides an in-process document store for development and
// tests. Contents are lost on restart.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/persistence/document"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("memory: store is closed")

type key struct {
	kind   document.Kind
	userID string
}

// Store keeps documents in a map.
type Store struct {
	mu     sync.RWMutex
	docs   map[key]document.Document
	closed bool
}

// New returns an empty store.
func New() *Store {
	return &Store{docs: make(map[key]document.Document)}
}

func (s *Store) Get(_ context.Context, kind document.Kind, userID string) (document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return document.Document{}, ErrClosed
	}
	doc, ok := s.docs[key{kind, userID}]
	if !ok {
		return document.Document{}, document.NotFound(kind, userID)
	}
	doc.Body = append([]byte(nil), doc.Body...)
	return doc, nil
}

func (s *Store) Put(_ context.Context, doc document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	doc.Body = append([]byte(nil), doc.Body...)
	s.docs[key{doc.Kind, doc.UserID}] = doc
	return nil
}

func (s *Store) Delete(_ context.Context, kind document.Kind, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.docs, key{kind, userID})
	return nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len reports the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

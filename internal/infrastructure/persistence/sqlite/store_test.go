package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/persistence/document"
	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/persistence/document/documenttest"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "zaptalk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	documenttest.Run(t, func(t *testing.T) document.Store { return openTempStore(t) })
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zaptalk.db")
	ctx := context.Background()

	first, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, document.Document{
		Kind: document.KindProgression, UserID: "u1", Version: 2, Body: []byte(`{"xp":5}`), UpdatedAt: time.Now(),
	}))
	require.NoError(t, first.Close())

	second, err := Open(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	doc, err := second.Get(ctx, document.KindProgression, "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"xp":5}`, string(doc.Body))
}

func TestMillisRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 30, 15, 123_000_000, time.FixedZone("x", 3600))
	assert.True(t, fromMillis(toMillis(at)).Equal(at))
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	var journal string
	require.NoError(t, s.sqlDB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journal))
	assert.Equal(t, "wal", journal)

	var busy int
	require.NoError(t, s.sqlDB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy))
	assert.Equal(t, 5000, busy)

	var fk int
	require.NoError(t, s.sqlDB.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestStore_ConcurrentPutsFromManyLearners(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	const learners, writes = 8, 50
	errs := make(chan error, learners*writes)

	var wg sync.WaitGroup
	for i := 0; i < learners; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			for n := 0; n < writes; n++ {
				errs <- s.Put(ctx, document.Document{
					Kind:      document.KindProgression,
					UserID:    user,
					Version:   2,
					Body:      []byte(fmt.Sprintf(`{"xp":%d}`, n)),
					UpdatedAt: time.Now(),
				})
			}
		}(fmt.Sprintf("learner-%d", i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for i := 0; i < learners; i++ {
		doc, err := s.Get(ctx, document.KindProgression, fmt.Sprintf("learner-%d", i))
		require.NoError(t, err)
		assert.JSONEq(t, fmt.Sprintf(`{"xp":%d}`, writes-1), string(doc.Body))
	}
}

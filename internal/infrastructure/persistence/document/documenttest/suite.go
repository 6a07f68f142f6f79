// Package documenttest holds the behaviour every document.Store backend
// must share. Backend tests call Run with a factory for a fresh store.
package documenttest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/entitlement"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/progression"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/persistence/document"
)

// Run exercises store through the raw port and the typed repositories.
func Run(t *testing.T, newStore func(t *testing.T) document.Store) {
	t.Run("missing document is not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), document.KindProgression, "nobody")
		require.Error(t, err)
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("put then get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

		require.NoError(t, s.Put(ctx, document.Document{
			Kind: document.KindEntitlements, UserID: "u1", Version: 1,
			Body: []byte(`{"version":1}`), UpdatedAt: at,
		}))
		require.NoError(t, s.Put(ctx, document.Document{
			Kind: document.KindEntitlements, UserID: "u1", Version: 1,
			Body: []byte(`{"version":1,"entitlements":[]}`), UpdatedAt: at.Add(time.Minute),
		}))

		doc, err := s.Get(ctx, document.KindEntitlements, "u1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"version":1,"entitlements":[]}`, string(doc.Body))
		assert.Equal(t, 1, doc.Version)
		assert.True(t, doc.UpdatedAt.Equal(at.Add(time.Minute)))

		_, err = s.Get(ctx, document.KindProgression, "u1")
		assert.True(t, shared.IsNotFound(err), "kinds are independent")
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, document.Document{
			Kind: document.KindProgression, UserID: "u2", Version: 2, Body: []byte(`{}`), UpdatedAt: time.Now(),
		}))
		require.NoError(t, s.Delete(ctx, document.KindProgression, "u2"))
		_, err := s.Get(ctx, document.KindProgression, "u2")
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("progression round trip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		repo := document.NewProgressionRepository(s)

		_, err := repo.Load(ctx, "learner")
		assert.True(t, shared.IsNotFound(err))

		rec := progression.NewRecord(progression.DefaultFreezeTokens)
		rec.XP = 130
		rec.Level = 2
		rec.Streak.Current = 1
		rec.Streak.LastCompletedDate = "2025-03-10"
		rec.DailyGoals["2025-03-10"] = progression.DailyGoal{Date: "2025-03-10", LessonsTarget: 1, Achieved: true}
		rec.Sessions = append(rec.Sessions, progression.StudySession{
			ID: "s1", LessonID: "A1-L01", Duration: 90, Completed: true, XPEarned: 95, QuizScore: shared.IntPtr(100),
		})
		require.NoError(t, repo.Save(ctx, "learner", rec))

		got, err := repo.Load(ctx, "learner")
		require.NoError(t, err)
		assert.Equal(t, 130, got.XP)
		assert.Equal(t, rec.Streak, got.Streak)
		assert.Equal(t, rec.DailyGoals, got.DailyGoals)
		require.Len(t, got.Sessions, 1)
		assert.Equal(t, 100, *got.Sessions[0].QuizScore)
	})

	t.Run("entitlement round trip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		repo := document.NewEntitlementRepository(s)

		rec := entitlement.NewRecord()
		rec.Entitlements = append(rec.Entitlements, entitlement.Entitlement{
			SkuID: "sku-module-A1-M01", Source: entitlement.SourceNostrZap, ReceiptID: "evt",
			GrantedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		})
		require.NoError(t, repo.Save(ctx, "learner", rec))

		got, err := repo.Load(ctx, "learner")
		require.NoError(t, err)
		require.Len(t, got.Entitlements, 1)
		assert.Equal(t, "evt", got.Entitlements[0].ReceiptID)
		assert.True(t, got.Entitlements[0].GrantedAt.Equal(rec.Entitlements[0].GrantedAt))
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, newStore(t).Ping(context.Background()))
	})
}

// Package query contains read operations (CQRS - Queries) that combine
// the catalog, progression and entitlements of one learner.
package query

import (
	"context"

	"github.com/ZapTalk/zaptalk.github.io/internal/application/account"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/catalog"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/entitlement"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/progression"
)

// learnerView - согласованный снимок данных учащегося, снятый под одной
// блокировкой аккаунта. Дальше read-модели строятся без блокировок.
type learnerView struct {
	catalog   *catalog.Catalog
	progress  *progression.Record
	stats     progression.Stats
	completed map[string]bool // урок -> пройден
	access    map[string]bool // урок -> открыт
	active    string          // урок активной сессии
	owned     []entitlement.Entitlement
}

func loadView(ctx context.Context, accounts *account.Registry, userID string) (*learnerView, error) {
	cat := accounts.Catalog()
	v := &learnerView{catalog: cat, access: make(map[string]bool)}

	err := accounts.With(ctx, userID, func(a *account.Account) error {
		engine := a.Progression()
		store := a.Entitlements()

		v.progress = engine.Snapshot()
		v.stats = engine.Stats()
		v.completed = store.CompletedLessons()
		v.owned = store.Entitlements()
		if s, ok := engine.ActiveSession(); ok {
			v.active = s.LessonID
		}
		for _, l := range cat.Lessons() {
			v.access[l.ID] = store.HasAccess(l.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Урок считается пройденным и по истории сессий.
	for _, s := range v.progress.Sessions {
		if s.Completed {
			v.completed[s.LessonID] = true
		}
	}
	return v, nil
}

func percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return (part*100 + total/2) / total
}

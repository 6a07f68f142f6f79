package query

import (
	"context"

	"github.com/ZapTalk/zaptalk.github.io/internal/application/account"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/entitlement"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DASHBOARD QUERY
// Страница прогресса: статистика, прогресс по уровням, открытые SKU и
// дневная цель на сегодня одним ответом.
// ══════════════════════════════════════════════════════════════════════════════

// Dashboard - сводка для страницы прогресса.
type Dashboard struct {
	UserID       string                    `json:"userId"`
	Stats        progression.Stats         `json:"stats"`
	Levels       []LevelProgress           `json:"cefrProgress"`
	Overall      OverallProgress           `json:"overallProgress"`
	TodayGoal    *progression.DailyGoal    `json:"todayGoal,omitempty"`
	Entitlements []entitlement.Entitlement `json:"entitlements"`
}

// GetDashboardQuery содержит параметры запроса.
type GetDashboardQuery struct {
	UserID string
}

// GetDashboardHandler обрабатывает GetDashboardQuery.
type GetDashboardHandler struct {
	accounts *account.Registry
}

// NewGetDashboardHandler создаёт обработчик.
func NewGetDashboardHandler(accounts *account.Registry) *GetDashboardHandler {
	return &GetDashboardHandler{accounts: accounts}
}

// Handle собирает сводку.
func (h *GetDashboardHandler) Handle(ctx context.Context, q GetDashboardQuery) (*Dashboard, error) {
	v, err := loadView(ctx, h.accounts, q.UserID)
	if err != nil {
		return nil, err
	}
	levels := buildLevelProgress(v)

	d := &Dashboard{
		UserID:       q.UserID,
		Stats:        v.stats,
		Levels:       levels.Levels,
		Overall:      levels.Overall,
		Entitlements: v.owned,
	}
	if d.Entitlements == nil {
		d.Entitlements = []entitlement.Entitlement{}
	}
	if g, ok := v.progress.DailyGoals[h.accounts.Calendar().Today()]; ok {
		d.TodayGoal = &g
	}
	return d, nil
}

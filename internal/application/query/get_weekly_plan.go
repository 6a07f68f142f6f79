package query

import (
	"context"
	"time"

	"github.com/ZapTalk/zaptalk.github.io/internal/application/account"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/progression"
	"github.com/ZapTalk/zaptalk.github.io/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET WEEKLY PLAN QUERY
// Недельный план: дневные цели с воскресенья по субботу, сколько из них
// выполнено и сколько опыта заработано за неделю.
// ══════════════════════════════════════════════════════════════════════════════

// PlanDay - один день недели.
type PlanDay struct {
	Date    string                 `json:"date"`
	Weekday string                 `json:"weekday"`
	IsToday bool                   `json:"isToday"`
	Goal    *progression.DailyGoal `json:"goal,omitempty"`
}

// WeeklyPlan - план на неделю.
type WeeklyPlan struct {
	WeekStart     string     `json:"weekStart"`
	WeekEnd       string     `json:"weekEnd"`
	Offset        int        `json:"offset"`
	Days          [7]PlanDay `json:"days"`
	TotalXPEarned int        `json:"totalXPEarned"`
	GoalsAchieved int        `json:"goalsAchieved"`
	TotalGoals    int        `json:"totalGoals"`
	Percentage    int        `json:"percentage"`
}

// GetWeeklyPlanQuery содержит параметры запроса.
type GetWeeklyPlanQuery struct {
	UserID string

	// Offset - сдвиг в неделях от текущей: -1 прошлая, 1 следующая.
	Offset int
}

// GetWeeklyPlanHandler обрабатывает GetWeeklyPlanQuery.
type GetWeeklyPlanHandler struct {
	accounts *account.Registry
}

// NewGetWeeklyPlanHandler создаёт обработчик.
func NewGetWeeklyPlanHandler(accounts *account.Registry) *GetWeeklyPlanHandler {
	return &GetWeeklyPlanHandler{accounts: accounts}
}

// Handle строит недельный план.
func (h *GetWeeklyPlanHandler) Handle(ctx context.Context, q GetWeeklyPlanQuery) (*WeeklyPlan, error) {
	v, err := loadView(ctx, h.accounts, q.UserID)
	if err != nil {
		return nil, err
	}
	return buildWeeklyPlan(v.progress, h.accounts.Calendar(), q.Offset), nil
}

func buildWeeklyPlan(rec *progression.Record, cal *timeutil.Calendar, offset int) *WeeklyPlan {
	now := cal.Now()
	today := cal.Today()
	start := cal.StartOfWeek(now).AddDate(0, 0, 7*offset)
	end := start.AddDate(0, 0, 7)

	plan := &WeeklyPlan{Offset: offset}
	for i, date := range cal.WeekDates(now, offset) {
		day := PlanDay{
			Date:    date,
			Weekday: time.Weekday(i).String(),
			IsToday: date == today,
		}
		if g, ok := rec.DailyGoals[date]; ok {
			day.Goal = &g
			plan.TotalGoals++
			if g.Achieved {
				plan.GoalsAchieved++
			}
		}
		plan.Days[i] = day
	}
	plan.WeekStart = plan.Days[0].Date
	plan.WeekEnd = plan.Days[6].Date
	plan.Percentage = percent(plan.GoalsAchieved, plan.TotalGoals)

	for _, tx := range rec.Transactions {
		if !tx.Timestamp.Before(start) && tx.Timestamp.Before(end) {
			plan.TotalXPEarned += tx.Amount
		}
	}
	return plan
}

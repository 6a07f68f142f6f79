package query

import (
	"context"
	"math"

	"github.com/ZapTalk/zaptalk.github.io/internal/application/account"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/catalog"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEVEL PROGRESS QUERY
// Прогресс по уровням CEFR: сколько уроков пройдено, открыто и закрыто,
// сколько времени займёт уровень и сколько опыта на нём заработано.
// ══════════════════════════════════════════════════════════════════════════════

// MaxLessonXP - максимум опыта за один урок: прохождение, идеальный квиз
// и бонус за скорость.
const MaxLessonXP = progression.XPLessonComplete + progression.XPQuizPerfect + progression.XPSpeedBonus

// LevelProgress - прогресс по одному уровню.
type LevelProgress struct {
	Level              catalog.LevelCode `json:"level"`
	Title              string            `json:"title"`
	TotalLessons       int               `json:"totalLessons"`
	CompletedLessons   int               `json:"completedLessons"`
	UnlockedLessons    int               `json:"unlockedLessons"`
	LockedLessons      int               `json:"lockedLessons"`
	ProgressPercentage int               `json:"progressPercentage"`
	EstimatedTimeHours float64           `json:"estimatedTimeHours"`
	XPEarned           int               `json:"xpEarned"`
	TotalXPAvailable   int               `json:"totalXPAvailable"`
}

// OverallProgress - сводка по всему каталогу.
type OverallProgress struct {
	TotalLessons       int `json:"totalLessons"`
	CompletedLessons   int `json:"completedLessons"`
	UnlockedLessons    int `json:"unlockedLessons"`
	ProgressPercentage int `json:"progressPercentage"`
	XPEarned           int `json:"xpEarned"`
}

// LevelProgressReport - ответ на запрос.
type LevelProgressReport struct {
	Levels  []LevelProgress `json:"levels"`
	Overall OverallProgress `json:"overall"`
}

// GetLevelProgressQuery содержит параметры запроса.
type GetLevelProgressQuery struct {
	UserID string
}

// GetLevelProgressHandler обрабатывает GetLevelProgressQuery.
type GetLevelProgressHandler struct {
	accounts *account.Registry
}

// NewGetLevelProgressHandler создаёт обработчик.
func NewGetLevelProgressHandler(accounts *account.Registry) *GetLevelProgressHandler {
	return &GetLevelProgressHandler{accounts: accounts}
}

// Handle считает прогресс по уровням.
func (h *GetLevelProgressHandler) Handle(ctx context.Context, q GetLevelProgressQuery) (*LevelProgressReport, error) {
	v, err := loadView(ctx, h.accounts, q.UserID)
	if err != nil {
		return nil, err
	}
	return buildLevelProgress(v), nil
}

func buildLevelProgress(v *learnerView) *LevelProgressReport {
	// Опыт по урокам из журнала транзакций.
	xpByLesson := make(map[string]int)
	for _, tx := range v.progress.Transactions {
		if tx.LessonID != "" {
			xpByLesson[tx.LessonID] += tx.Amount
		}
	}

	report := &LevelProgressReport{Levels: []LevelProgress{}}
	for _, level := range v.catalog.Levels() {
		lp := LevelProgress{Level: level.Code, Title: level.Title}
		minutes := 0

		for _, lesson := range v.catalog.LessonsByLevel(level.Code) {
			lp.TotalLessons++
			minutes += lesson.DurationMin
			lp.XPEarned += xpByLesson[lesson.ID]
			if v.completed[lesson.ID] {
				lp.CompletedLessons++
			}
			if v.access[lesson.ID] {
				lp.UnlockedLessons++
			}
		}

		lp.LockedLessons = lp.TotalLessons - lp.UnlockedLessons
		lp.ProgressPercentage = percent(lp.CompletedLessons, lp.TotalLessons)
		lp.EstimatedTimeHours = math.Round(float64(minutes)/60*10) / 10
		lp.TotalXPAvailable = lp.TotalLessons * MaxLessonXP

		report.Levels = append(report.Levels, lp)
		report.Overall.TotalLessons += lp.TotalLessons
		report.Overall.CompletedLessons += lp.CompletedLessons
		report.Overall.UnlockedLessons += lp.UnlockedLessons
		report.Overall.XPEarned += lp.XPEarned
	}
	report.Overall.ProgressPercentage = percent(report.Overall.CompletedLessons, report.Overall.TotalLessons)
	return report
}

package query

import (
	"context"

	"github.com/ZapTalk/zaptalk.github.io/internal/application/account"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/catalog"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ROADMAP QUERY
// Карта обучения: каждый урок каталога со статусом для учащегося,
// сгруппированный по уровням CEFR.
// ══════════════════════════════════════════════════════════════════════════════

// NodeStatus - статус урока на карте.
type NodeStatus string

const (
	StatusLocked     NodeStatus = "locked"
	StatusAvailable  NodeStatus = "available"
	StatusInProgress NodeStatus = "in-progress"
	StatusCompleted  NodeStatus = "completed"
)

// Position - место узла: порядковый номер внутри уровня и номер уровня.
type Position struct {
	Index      int `json:"index"`
	LevelIndex int `json:"levelIndex"`
}

// RoadmapNode - урок на карте.
type RoadmapNode struct {
	LessonID string            `json:"lessonId"`
	Title    string            `json:"title"`
	Level    catalog.LevelCode `json:"level"`
	ModuleID string            `json:"moduleId"`
	Status   NodeStatus        `json:"status"`
	Position Position          `json:"position"`

	// Dependencies - уроки, которые стоит пройти раньше: предыдущий урок
	// того же модуля.
	Dependencies []string `json:"dependencies"`
	XPReward     int      `json:"xpReward"`
	DurationMin  int      `json:"durationMin"`
	IsFree       bool     `json:"isFree"`
}

// RoadmapLevel - узлы одного уровня и его сводка.
type RoadmapLevel struct {
	Code       catalog.LevelCode `json:"code"`
	Title      string            `json:"title"`
	Completed  int               `json:"completed"`
	Total      int               `json:"total"`
	Percentage int               `json:"percentage"`
	Nodes      []RoadmapNode     `json:"nodes"`
}

// Roadmap - карта обучения целиком.
type Roadmap struct {
	UserID string         `json:"userId"`
	Levels []RoadmapLevel `json:"levels"`
}

// GetRoadmapQuery содержит параметры запроса.
type GetRoadmapQuery struct {
	UserID string
}

// GetRoadmapHandler обрабатывает GetRoadmapQuery.
type GetRoadmapHandler struct {
	accounts *account.Registry
}

// NewGetRoadmapHandler создаёт обработчик.
func NewGetRoadmapHandler(accounts *account.Registry) *GetRoadmapHandler {
	return &GetRoadmapHandler{accounts: accounts}
}

// Handle строит карту обучения.
func (h *GetRoadmapHandler) Handle(ctx context.Context, q GetRoadmapQuery) (*Roadmap, error) {
	v, err := loadView(ctx, h.accounts, q.UserID)
	if err != nil {
		return nil, err
	}
	rm := buildRoadmap(v)
	rm.UserID = q.UserID
	return rm, nil
}

func buildRoadmap(v *learnerView) *Roadmap {
	rm := &Roadmap{Levels: []RoadmapLevel{}}

	for levelIndex, level := range v.catalog.Levels() {
		rl := RoadmapLevel{Code: level.Code, Title: level.Title, Nodes: []RoadmapNode{}}

		for _, mod := range v.catalog.ModulesByLevel(level.Code) {
			prev := ""
			for _, lesson := range v.catalog.LessonsByModule(mod.ID) {
				node := RoadmapNode{
					LessonID:     lesson.ID,
					Title:        lesson.Title,
					Level:        lesson.Level,
					ModuleID:     lesson.ModuleID,
					Status:       v.status(lesson.ID),
					Position:     Position{Index: len(rl.Nodes), LevelIndex: levelIndex},
					Dependencies: []string{},
					XPReward:     progression.XPLessonComplete,
					DurationMin:  lesson.DurationMin,
					IsFree:       lesson.IsFree,
				}
				if prev != "" {
					node.Dependencies = append(node.Dependencies, prev)
				}
				prev = lesson.ID

				if node.Status == StatusCompleted {
					rl.Completed++
				}
				rl.Nodes = append(rl.Nodes, node)
			}
		}

		rl.Total = len(rl.Nodes)
		rl.Percentage = percent(rl.Completed, rl.Total)
		rm.Levels = append(rm.Levels, rl)
	}
	return rm
}

func (v *learnerView) status(lessonID string) NodeStatus {
	switch {
	case v.completed[lessonID]:
		return StatusCompleted
	case v.active == lessonID:
		return StatusInProgress
	case v.access[lessonID]:
		return StatusAvailable
	default:
		return StatusLocked
	}
}

package progression

import "time"

// AchievementCategory - группа достижений.
type AchievementCategory string

const (
	CategoryMilestone  AchievementCategory = "milestone"
	CategoryStreak     AchievementCategory = "streak"
	CategorySpeed      AchievementCategory = "speed"
	CategoryPerfection AchievementCategory = "perfection"
	CategoryExplorer   AchievementCategory = "explorer"
	CategoryDedication AchievementCategory = "dedication"
)

// Categories - все категории в порядке отображения.
var Categories = []AchievementCategory{
	CategoryMilestone, CategoryStreak, CategorySpeed,
	CategoryPerfection, CategoryExplorer, CategoryDedication,
}

// AchievementRarity - редкость достижения.
type AchievementRarity string

const (
	RarityCommon    AchievementRarity = "common"
	RarityRare      AchievementRarity = "rare"
	RarityEpic      AchievementRarity = "epic"
	RarityLegendary AchievementRarity = "legendary"
)

// Metric - накопительный счётчик, с которым сравнивается порог достижения.
type Metric string

const (
	MetricCompletedLessons Metric = "completed_lessons"
	MetricCurrentStreak    Metric = "current_streak"
	MetricPerfectScores    Metric = "perfect_scores"
	MetricFastCompletions  Metric = "fast_completions"
)

// AchievementDefinition - статическое правило.
type AchievementDefinition struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Category    AchievementCategory `json:"category"`
	Rarity      AchievementRarity   `json:"rarity"`
	XPReward    int                 `json:"xpReward"`
	Icon        string              `json:"icon"`
	Requirement int                 `json:"requirement"`
	Metric      Metric              `json:"metric"`
}

// Achievement - открытое достижение: копия определения плюс момент открытия.
type Achievement struct {
	AchievementDefinition
	UnlockedAt   time.Time `json:"unlockedAt"`
	Progress     int       `json:"progress"`
	CurrentValue int       `json:"currentValue"`
}

// AchievementCatalog - упорядоченный набор определений только для чтения.
type AchievementCatalog struct {
	defs []AchievementDefinition
	byID map[string]int
}

// NewAchievementCatalog индексирует определения. Повторный id перекрывает прежний.
func NewAchievementCatalog(defs []AchievementDefinition) *AchievementCatalog {
	c := &AchievementCatalog{byID: make(map[string]int, len(defs))}
	for _, d := range defs {
		if i, ok := c.byID[d.ID]; ok {
			c.defs[i] = d
			continue
		}
		c.byID[d.ID] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c
}

// All возвращает определения в порядке каталога.
func (c *AchievementCatalog) All() []AchievementDefinition {
	return append([]AchievementDefinition(nil), c.defs...)
}

// Len - число определений.
func (c *AchievementCatalog) Len() int { return len(c.defs) }

// ByID ищет определение.
func (c *AchievementCatalog) ByID(id string) (AchievementDefinition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return AchievementDefinition{}, false
	}
	return c.defs[i], true
}

// DefaultAchievements - встроенный набор правил ZapTalk.
func DefaultAchievements() *AchievementCatalog {
	return NewAchievementCatalog(defaultAchievementDefinitions)
}

var defaultAchievementDefinitions = []AchievementDefinition{
	// Уроки
	{ID: "lessons-1", Title: "First Steps", Description: "Complete your first lesson", Category: CategoryMilestone, Rarity: RarityCommon, XPReward: 10, Icon: "🎯", Requirement: 1, Metric: MetricCompletedLessons},
	{ID: "lessons-5", Title: "Getting Started", Description: "Complete 5 lessons", Category: CategoryMilestone, Rarity: RarityCommon, XPReward: 25, Icon: "📘", Requirement: 5, Metric: MetricCompletedLessons},
	{ID: "lessons-10", Title: "Dedicated Learner", Description: "Complete 10 lessons", Category: CategoryMilestone, Rarity: RarityCommon, XPReward: 50, Icon: "📚", Requirement: 10, Metric: MetricCompletedLessons},
	{ID: "lessons-25", Title: "Knowledge Seeker", Description: "Complete 25 lessons", Category: CategoryMilestone, Rarity: RarityRare, XPReward: 100, Icon: "🔎", Requirement: 25, Metric: MetricCompletedLessons},
	{ID: "lessons-50", Title: "Scholar", Description: "Complete 50 lessons", Category: CategoryMilestone, Rarity: RarityRare, XPReward: 200, Icon: "🎓", Requirement: 50, Metric: MetricCompletedLessons},
	{ID: "lessons-100", Title: "Centurion", Description: "Complete 100 lessons", Category: CategoryMilestone, Rarity: RarityEpic, XPReward: 500, Icon: "🏛️", Requirement: 100, Metric: MetricCompletedLessons},
	{ID: "lessons-250", Title: "Language Master", Description: "Complete 250 lessons", Category: CategoryMilestone, Rarity: RarityLegendary, XPReward: 1000, Icon: "👑", Requirement: 250, Metric: MetricCompletedLessons},

	// Серии
	{ID: "streak-3", Title: "On Fire", Description: "Study 3 days in a row", Category: CategoryStreak, Rarity: RarityCommon, XPReward: 20, Icon: "🔥", Requirement: 3, Metric: MetricCurrentStreak},
	{ID: "streak-7", Title: "Week Warrior", Description: "Study 7 days in a row", Category: CategoryStreak, Rarity: RarityRare, XPReward: 50, Icon: "⚔️", Requirement: 7, Metric: MetricCurrentStreak},
	{ID: "streak-14", Title: "Fortnight Focus", Description: "Study 14 days in a row", Category: CategoryStreak, Rarity: RarityRare, XPReward: 100, Icon: "📅", Requirement: 14, Metric: MetricCurrentStreak},
	{ID: "streak-30", Title: "Monthly Master", Description: "Study 30 days in a row", Category: CategoryStreak, Rarity: RarityEpic, XPReward: 200, Icon: "🌙", Requirement: 30, Metric: MetricCurrentStreak},
	{ID: "streak-60", Title: "Unstoppable", Description: "Study 60 days in a row", Category: CategoryDedication, Rarity: RarityEpic, XPReward: 400, Icon: "🚀", Requirement: 60, Metric: MetricCurrentStreak},
	{ID: "streak-100", Title: "Century Streak", Description: "Study 100 days in a row", Category: CategoryDedication, Rarity: RarityLegendary, XPReward: 1000, Icon: "💯", Requirement: 100, Metric: MetricCurrentStreak},
	{ID: "streak-365", Title: "Year of Learning", Description: "Study every day for a year", Category: CategoryDedication, Rarity: RarityLegendary, XPReward: 2500, Icon: "🌍", Requirement: 365, Metric: MetricCurrentStreak},

	// Идеальные квизы
	{ID: "perfect-score", Title: "Perfectionist", Description: "Score 100% on a quiz", Category: CategoryPerfection, Rarity: RarityCommon, XPReward: 25, Icon: "⭐", Requirement: 1, Metric: MetricPerfectScores},
	{ID: "perfect-5", Title: "Sharp Mind", Description: "Score 100% on 5 quizzes", Category: CategoryPerfection, Rarity: RarityRare, XPReward: 50, Icon: "🧠", Requirement: 5, Metric: MetricPerfectScores},
	{ID: "perfect-10", Title: "Flawless", Description: "Score 100% on 10 quizzes", Category: CategoryPerfection, Rarity: RarityRare, XPReward: 100, Icon: "💎", Requirement: 10, Metric: MetricPerfectScores},
	{ID: "perfect-25", Title: "Precision Expert", Description: "Score 100% on 25 quizzes", Category: CategoryPerfection, Rarity: RarityEpic, XPReward: 250, Icon: "🎯", Requirement: 25, Metric: MetricPerfectScores},
	{ID: "perfect-50", Title: "Perfect Fifty", Description: "Score 100% on 50 quizzes", Category: CategoryPerfection, Rarity: RarityLegendary, XPReward: 500, Icon: "🏆", Requirement: 50, Metric: MetricPerfectScores},

	// Скорость
	{ID: "speed-demon", Title: "Speed Demon", Description: "Complete 10 lessons in under 3 minutes", Category: CategorySpeed, Rarity: RarityRare, XPReward: 100, Icon: "⚡", Requirement: 10, Metric: MetricFastCompletions},
	{ID: "lightning-fast", Title: "Lightning Fast", Description: "Complete 25 lessons in under 3 minutes", Category: CategorySpeed, Rarity: RarityEpic, XPReward: 250, Icon: "🌩️", Requirement: 25, Metric: MetricFastCompletions},
}

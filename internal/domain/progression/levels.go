package progression

import (
	"math"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP REWARDS
// ══════════════════════════════════════════════════════════════════════════════

// Награды за действия.
const (
	XPLessonComplete = 50
	XPQuizPerfect    = 25 // ровно 100
	XPQuizGood       = 15 // 80-99
	XPQuizPass       = 10 // 60-79
	XPSpeedBonus     = 20 // урок быстрее SpeedThresholdSeconds
	XPDailyGoal      = 30

	SpeedThresholdSeconds = 180
)

// Причины начисления XP в журнале транзакций.
const (
	ReasonLessonCompleted   = "Lesson completed"
	ReasonDailyGoalAchieved = "Daily goal achieved"
	reasonAchievementPrefix = "Achievement: "
)

// QuizBonus возвращает бонус за результат квиза. Без результата бонуса нет.
func QuizBonus(score *int) int {
	if score == nil {
		return 0
	}
	switch s := *score; {
	case s >= 100:
		return XPQuizPerfect
	case s >= 80:
		return XPQuizGood
	case s >= 60:
		return XPQuizPass
	default:
		return 0
	}
}

// LessonXP считает опыт за завершённый урок: базовая награда, бонус за квиз
// и бонус за скорость.
func LessonXP(quizScore *int, durationSeconds int) int {
	xp := XPLessonComplete + QuizBonus(quizScore)
	if durationSeconds < SpeedThresholdSeconds {
		xp += XPSpeedBonus
	}
	return xp
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CURVE
// ══════════════════════════════════════════════════════════════════════════════

// MaxLevel ограничивает кривую: дальше суммарный XP перестаёт помещаться в int64.
const MaxLevel = 250

// XPRequiredForLevel - сколько XP нужно, чтобы пройти уровень n и попасть на n+1.
func XPRequiredForLevel(n int) int {
	if n < 1 {
		n = 1
	}
	return int(math.Floor(100 * math.Pow(1.15, float64(n-1))))
}

// TotalXPForLevel - суммарный XP, нужный для достижения уровня n с нуля.
// Для уровня 1 это 0.
func TotalXPForLevel(n int) int {
	if n > MaxLevel {
		n = MaxLevel
	}
	total := 0
	for i := 1; i < n; i++ {
		total += XPRequiredForLevel(i)
	}
	return total
}

// LevelFromXP - наибольший n, для которого TotalXPForLevel(n) <= xp.
// Считается накоплением, поэтому согласован с TotalXPForLevel и монотонен.
func LevelFromXP(xp int) int {
	level, total := 1, 0
	for level < MaxLevel {
		next := total + XPRequiredForLevel(level)
		if next > xp {
			break
		}
		total = next
		level++
	}
	return level
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL TITLES
// ══════════════════════════════════════════════════════════════════════════════

var levelTitles = map[int]string{
	1:   "Novice",
	5:   "Learner",
	10:  "Student",
	15:  "Apprentice",
	20:  "Practitioner",
	25:  "Skilled",
	30:  "Adept",
	35:  "Expert",
	40:  "Specialist",
	45:  "Professional",
	50:  "Master",
	60:  "Grand Master",
	70:  "Legend",
	80:  "Champion",
	90:  "Virtuoso",
	100: "Grandmaster",
}

// titleMilestones - пороги по убыванию.
var titleMilestones = func() []int {
	out := make([]int, 0, len(levelTitles))
	for lvl := range levelTitles {
		out = append(out, lvl)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}()

// LevelTitle возвращает звание старшего порога, не превышающего n.
func LevelTitle(n int) string {
	for _, milestone := range titleMilestones {
		if n >= milestone {
			return levelTitles[milestone]
		}
	}
	return levelTitles[1]
}

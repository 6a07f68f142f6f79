package progression

import "math"

const recentItems = 5

// Stats - производная статистика. Всегда вычисляется заново и нигде не хранится.
type Stats struct {
	TotalXP        int     `json:"totalXP"`
	CurrentLevel   int     `json:"currentLevel"`
	LevelTitle     string  `json:"levelTitle"`
	XPForNextLevel int     `json:"xpForNextLevel"` // ширина текущего уровня
	XPToNextLevel  int     `json:"xpToNextLevel"`  // сколько осталось
	XPProgress     float64 `json:"xpProgress"`     // 0-100

	TotalStudyMinutes     int `json:"totalStudyMinutes"`
	TotalLessonsCompleted int `json:"totalLessonsCompleted"`
	AverageQuizScore      int `json:"averageQuizScore"`
	PerfectScores         int `json:"perfectScores"`

	CurrentStreak          int `json:"currentStreak"`
	LongestStreak          int `json:"longestStreak"`
	StreakFreezesAvailable int `json:"streakFreezesAvailable"`
	TotalDaysStudied       int `json:"totalDaysStudied"`

	AchievementsUnlocked   int                         `json:"achievementsUnlocked"`
	TotalAchievements      int                         `json:"totalAchievements"`
	AchievementsByCategory map[AchievementCategory]int `json:"achievementsByCategory"`

	RecentXPTransactions []XPTransaction `json:"recentXPTransactions"`
	RecentAchievements   []Achievement   `json:"recentAchievements"`
	RecentSessions       []StudySession  `json:"recentSessions"`
}

// ComputeStats - чистая функция над записью; запись не меняется.
func ComputeStats(r *Record, achievements *AchievementCatalog) Stats {
	levelStart := TotalXPForLevel(r.Level)
	span := XPRequiredForLevel(r.Level)

	st := Stats{
		TotalXP:        r.XP,
		CurrentLevel:   r.Level,
		LevelTitle:     LevelTitle(r.Level),
		XPForNextLevel: span,
		XPToNextLevel:  max(levelStart+span-r.XP, 0),

		TotalStudyMinutes:     r.Counters.StudySeconds / 60,
		TotalLessonsCompleted: r.Counters.CompletedLessons,
		PerfectScores:         r.Counters.PerfectScores,

		CurrentStreak:          r.Streak.Current,
		LongestStreak:          r.Streak.Longest,
		StreakFreezesAvailable: r.Streak.FreezesAvailable,
		TotalDaysStudied:       r.Streak.TotalDaysStudied,

		AchievementsUnlocked:   len(r.Achievements),
		TotalAchievements:      achievements.Len(),
		AchievementsByCategory: make(map[AchievementCategory]int, len(Categories)),
	}

	if span > 0 {
		p := float64(r.XP-levelStart) / float64(span) * 100
		st.XPProgress = math.Min(math.Max(p, 0), 100)
	}
	if r.Counters.QuizScoreCount > 0 {
		st.AverageQuizScore = int(math.Round(float64(r.Counters.QuizScoreSum) / float64(r.Counters.QuizScoreCount)))
	}

	for _, c := range Categories {
		st.AchievementsByCategory[c] = 0
	}
	for _, a := range r.Achievements {
		st.AchievementsByCategory[a.Category]++
	}

	st.RecentXPTransactions = newestFirst(r.Transactions, recentItems)
	st.RecentAchievements = newestFirst(r.Achievements, recentItems)

	st.RecentSessions = make([]StudySession, 0, recentItems)
	for i := len(r.Sessions) - 1; i >= 0 && len(st.RecentSessions) < recentItems; i-- {
		if r.Sessions[i].Completed {
			st.RecentSessions = append(st.RecentSessions, r.Sessions[i].clone())
		}
	}
	return st
}

// newestFirst возвращает до n последних элементов хронологического среза
// в обратном порядке.
func newestFirst[T any](items []T, n int) []T {
	out := make([]T, 0, min(n, len(items)))
	for i := len(items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, items[i])
	}
	return out
}

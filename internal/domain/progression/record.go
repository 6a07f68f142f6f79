package progression

import (
	"fmt"
	"time"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
)

// Границы хранимой истории.
const (
	MaxSessionHistory     = 200
	MaxTransactionHistory = 100
	DefaultFreezeTokens   = 2
)

// RecordVersion - текущая версия схемы сохранённого состояния.
// Версия 1 - документы этого сервиса до появления Counters, версия 2 их
// добавила. Выгрузки браузерного клиента с временем в миллисекундах
// сюда не читаются.
const RecordVersion = 2

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Streak - серия учебных дней.
type Streak struct {
	Current           int    `json:"currentStreak"`
	Longest           int    `json:"longestStreak"`
	LastCompletedDate string `json:"lastCompletedDate"` // ISO-дата или ""
	FreezesAvailable  int    `json:"freezesAvailable"`
	TotalDaysStudied  int    `json:"totalDaysStudied"`
}

// DailyGoal - дневная цель по урокам и минутам.
type DailyGoal struct {
	Date             string `json:"date"`
	LessonsTarget    int    `json:"lessonsTarget"`
	MinutesTarget    int    `json:"minutesTarget"`
	LessonsCompleted int    `json:"lessonsCompleted"`
	MinutesCompleted int    `json:"minutesCompleted"`
	Achieved         bool   `json:"achieved"`
	// Rewarded - бонус XPDailyGoal за эту дату уже начислен.
	Rewarded bool `json:"rewarded,omitempty"`
}

func (g *DailyGoal) recompute() {
	g.Achieved = g.LessonsCompleted >= g.LessonsTarget && g.MinutesCompleted >= g.MinutesTarget
}

// StudySession - попытка пройти урок. EndTime == nil, пока сессия активна.
type StudySession struct {
	ID        string     `json:"id"`
	LessonID  string     `json:"lessonId"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Duration  int        `json:"duration"` // секунды
	Completed bool       `json:"completed"`
	XPEarned  int        `json:"xpEarned"`
	QuizScore *int       `json:"quizScore,omitempty"`
}

// IsFast - урок завершён быстрее порога скорости.
func (s StudySession) IsFast() bool {
	return s.Completed && s.Duration < SpeedThresholdSeconds
}

// IsPerfect - урок завершён со 100 баллами.
func (s StudySession) IsPerfect() bool {
	return s.Completed && s.QuizScore != nil && *s.QuizScore == shared.MaxScore
}

// XPTransaction - неизменяемая запись журнала опыта.
type XPTransaction struct {
	ID        string    `json:"id"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	LessonID  string    `json:"lessonId,omitempty"`
}

// Counters - накопительные счётчики за всё время. В отличие от истории
// сессий они не обрезаются, поэтому пороги вроде lessons-250 достижимы.
type Counters struct {
	CompletedLessons int `json:"completedLessons"`
	PerfectScores    int `json:"perfectScores"`
	FastCompletions  int `json:"fastCompletions"`
	StudySeconds     int `json:"studySeconds"`
	QuizScoreSum     int `json:"quizScoreSum"`
	QuizScoreCount   int `json:"quizScoreCount"`
}

func (c *Counters) addSession(s StudySession) {
	if !s.Completed {
		return
	}
	c.CompletedLessons++
	c.StudySeconds += s.Duration
	if s.QuizScore != nil {
		c.QuizScoreSum += *s.QuizScore
		c.QuizScoreCount++
	}
	if s.IsPerfect() {
		c.PerfectScores++
	}
	if s.IsFast() {
		c.FastCompletions++
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record - полное сохраняемое состояние прогресса одного пользователя.
// История сессий и журнал XP хранятся в хронологическом порядке.
type Record struct {
	Version       int                  `json:"version"`
	XP            int                  `json:"xp"`
	Level         int                  `json:"level"`
	Achievements  []Achievement        `json:"achievements"`
	Streak        Streak               `json:"streak"`
	Sessions      []StudySession       `json:"sessions"`
	Transactions  []XPTransaction      `json:"xpTransactions"`
	DailyGoals    map[string]DailyGoal `json:"dailyGoals"`
	TodayGoal     *DailyGoal           `json:"todayGoal,omitempty"`
	ActiveSession *StudySession        `json:"activeSession,omitempty"`
	Counters      Counters             `json:"counters"`
	LastUpdated   time.Time            `json:"lastUpdated"`
}

// NewRecord возвращает начальное состояние.
func NewRecord(freezes int) *Record {
	return &Record{
		Version:      RecordVersion,
		Level:        1,
		Achievements: []Achievement{},
		Streak:       Streak{FreezesAvailable: freezes},
		Sessions:     []StudySession{},
		Transactions: []XPTransaction{},
		DailyGoals:   map[string]DailyGoal{},
	}
}

// Clone делает глубокую копию.
func (r *Record) Clone() *Record {
	out := *r
	out.Achievements = append([]Achievement{}, r.Achievements...)
	out.Sessions = make([]StudySession, len(r.Sessions))
	for i, s := range r.Sessions {
		out.Sessions[i] = s.clone()
	}
	out.Transactions = append([]XPTransaction{}, r.Transactions...)
	out.DailyGoals = make(map[string]DailyGoal, len(r.DailyGoals))
	for k, v := range r.DailyGoals {
		out.DailyGoals[k] = v
	}
	if r.TodayGoal != nil {
		g := *r.TodayGoal
		out.TodayGoal = &g
	}
	if r.ActiveSession != nil {
		s := r.ActiveSession.clone()
		out.ActiveSession = &s
	}
	return &out
}

func (s StudySession) clone() StudySession {
	if s.EndTime != nil {
		t := *s.EndTime
		s.EndTime = &t
	}
	s.QuizScore = shared.ClampScorePtr(s.QuizScore)
	return s
}

// HasAchievement проверяет, открыто ли достижение.
func (r *Record) HasAchievement(id string) bool {
	for _, a := range r.Achievements {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Upgrade приводит запись старой версии к текущей схеме.
func (r *Record) Upgrade() error {
	if r.Version > RecordVersion {
		return shared.NewDomainError("progression", "Upgrade", shared.ErrUnsupportedVersion,
			fmt.Sprintf("record version %d is newer than %d", r.Version, RecordVersion))
	}
	if r.Achievements == nil {
		r.Achievements = []Achievement{}
	}
	if r.Sessions == nil {
		r.Sessions = []StudySession{}
	}
	if r.Transactions == nil {
		r.Transactions = []XPTransaction{}
	}
	if r.DailyGoals == nil {
		r.DailyGoals = map[string]DailyGoal{}
	}
	if r.Version < 2 {
		// Документ версии 1, записанный этим сервисом: времена уже в RFC 3339,
		// счётчиков нет. Восстанавливаем их по сохранённым сессиям.
		r.Counters = Counters{}
		for _, s := range r.Sessions {
			r.Counters.addSession(s)
		}
	}
	if r.Level < 1 {
		r.Level = LevelFromXP(r.XP)
	}
	r.Version = RecordVersion
	return nil
}

func (r *Record) metric(m Metric) int {
	switch m {
	case MetricCompletedLessons:
		return r.Counters.CompletedLessons
	case MetricCurrentStreak:
		return r.Streak.Current
	case MetricPerfectScores:
		return r.Counters.PerfectScores
	case MetricFastCompletions:
		return r.Counters.FastCompletions
	default:
		return 0
	}
}

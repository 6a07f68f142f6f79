package progression

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
	"github.com/ZapTalk/zaptalk.github.io/pkg/logger"
	"github.com/ZapTalk/zaptalk.github.io/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine - машина состояний опыта, уровня, серии и достижений одного
// пользователя.
//
// Каждая изменяющая операция работает с копией записи, один раз сохраняет
// её в Repository и только после подтверждения записи заменяет состояние в
// памяти и публикует события. При ошибке хранилища состояние не меняется.
//
// Engine не безопасен для конкурентного использования: вызовы сериализует
// владелец (account.Registry).
type Engine struct {
	userID       string
	repo         Repository
	calendar     *timeutil.Calendar
	achievements *AchievementCatalog
	publisher    shared.EventPublisher
	log          *logger.Logger
	newID        func() string
	freezes      int

	rec *Record
}

// Option настраивает Engine.
type Option func(*Engine)

func WithCalendar(c *timeutil.Calendar) Option {
	return func(e *Engine) { e.calendar = c }
}

func WithAchievements(c *AchievementCatalog) Option {
	return func(e *Engine) { e.achievements = c }
}

func WithPublisher(p shared.EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithIDGenerator подменяет генератор идентификаторов сессий и транзакций.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithInitialFreezes задаёт число заморозок в начальном состоянии.
func WithInitialFreezes(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.freezes = n
		}
	}
}

// NewEngine создаёт движок с начальным состоянием. Сохранённое состояние
// подтягивается вызовом Load.
func NewEngine(userID string, repo Repository, opts ...Option) *Engine {
	e := &Engine{
		userID:       userID,
		repo:         repo,
		achievements: DefaultAchievements(),
		publisher:    shared.NopPublisher{},
		newID:        uuid.NewString,
		freezes:      DefaultFreezeTokens,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.calendar == nil {
		e.calendar = timeutil.NewCalendar(nil, nil)
	}
	if e.log == nil {
		e.log = logger.Default()
	}
	e.log = e.log.With(logger.Component("progression"), logger.UserID(userID))
	e.rec = NewRecord(e.freezes)
	return e
}

// Load читает сохранённое состояние. Отсутствие записи - не ошибка.
func (e *Engine) Load(ctx context.Context) error {
	rec, err := e.repo.Load(ctx, e.userID)
	if err != nil {
		if shared.IsNotFound(err) {
			e.rec = NewRecord(e.freezes)
			return nil
		}
		return shared.StorageError("progression", "Load", err)
	}
	if err := rec.Upgrade(); err != nil {
		return err
	}
	e.rec = rec
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MUTATION
// ══════════════════════════════════════════════════════════════════════════════

// mutation - одна транзакция над копией записи.
type mutation struct {
	e         *Engine
	rec       *Record
	now       time.Time
	today     string
	yesterday string
	changed   bool
	events    []shared.Event
}

func (e *Engine) mutate(ctx context.Context, op string, fn func(m *mutation)) error {
	now := e.calendar.Now()
	m := &mutation{
		e:         e,
		rec:       e.rec.Clone(),
		now:       now,
		today:     timeutil.FormatDate(now),
		yesterday: timeutil.FormatDate(now.AddDate(0, 0, -1)),
	}
	fn(m)
	if !m.changed {
		return nil
	}

	m.rec.LastUpdated = now
	if err := e.repo.Save(ctx, e.userID, m.rec); err != nil {
		e.log.Error("save progression failed", logger.Operation(op), logger.Err(err))
		return shared.StorageError("progression", op, err)
	}
	e.rec = m.rec

	for _, ev := range m.events {
		if err := e.publisher.Publish(ev); err != nil {
			e.log.Warn("publish event failed",
				logger.Operation(op),
				logger.String("event_type", string(ev.EventType())),
				logger.Err(err))
		}
	}
	return nil
}

func (m *mutation) emit(ev shared.Event) { m.events = append(m.events, ev) }

func (m *mutation) base(t shared.EventType) shared.BaseEvent {
	return shared.NewBaseEvent(t, m.e.userID, m.now)
}

// credit начисляет XP без проверки достижений.
func (m *mutation) credit(amount int, reason, lessonID string) {
	if amount <= 0 {
		return
	}
	r := m.rec
	r.Transactions = append(r.Transactions, XPTransaction{
		ID:        m.e.newID(),
		Amount:    amount,
		Reason:    reason,
		Timestamp: m.now,
		LessonID:  lessonID,
	})
	if n := len(r.Transactions); n > MaxTransactionHistory {
		r.Transactions = append([]XPTransaction(nil), r.Transactions[n-MaxTransactionHistory:]...)
	}

	oldLevel := r.Level
	r.XP += amount
	r.Level = LevelFromXP(r.XP)
	m.changed = true

	m.emit(shared.NewXPGainedEvent(m.e.userID, m.now, amount, r.XP, reason, lessonID))
	if r.Level > oldLevel {
		m.emit(shared.NewLevelUpEvent(m.e.userID, m.now, oldLevel, r.Level, LevelTitle(r.Level)))
	}
}

func (m *mutation) addXP(amount int, reason, lessonID string) {
	if amount <= 0 {
		return
	}
	m.credit(amount, reason, lessonID)
	m.checkAchievements()
}

// checkAchievements открывает все достижения, чей порог достигнут.
// Повторный вызов ничего не дублирует.
func (m *mutation) checkAchievements() {
	for _, def := range m.e.achievements.defs {
		if m.rec.HasAchievement(def.ID) {
			continue
		}
		if m.rec.metric(def.Metric) < def.Requirement {
			continue
		}
		m.rec.Achievements = append(m.rec.Achievements, Achievement{
			AchievementDefinition: def,
			UnlockedAt:            m.now,
			Progress:              100,
			CurrentValue:          def.Requirement,
		})
		m.changed = true
		m.emit(shared.NewAchievementUnlockedEvent(m.e.userID, m.now, def.ID, def.Title, def.XPReward))
		m.credit(def.XPReward, reasonAchievementPrefix+def.Title, "")
	}
}

func (m *mutation) updateStreak() {
	s := &m.rec.Streak
	last := s.LastCompletedDate
	if last == m.today {
		return
	}

	ev := shared.StreakUpdatedEvent{BaseEvent: m.base(shared.EventStreakUpdated)}
	switch {
	case last == "":
		s.Current = 1
	case last == m.yesterday:
		s.Current++
	case last < m.yesterday && s.FreezesAvailable > 0:
		s.FreezesAvailable--
		s.Current++
		ev.FreezeUsed = true
	case last < m.yesterday:
		s.Current = 1
		ev.WasReset = true
	default:
		// Дата из будущего: часы устройства уходили вперёд.
		s.Current = 1
		ev.WasReset = true
	}
	if s.Current > s.Longest {
		s.Longest = s.Current
	}
	s.LastCompletedDate = m.today
	s.TotalDaysStudied++
	m.changed = true

	ev.Current, ev.Longest, ev.FreezesLeft = s.Current, s.Longest, s.FreezesAvailable
	m.emit(ev)
	m.checkAchievements()
}

// setTodayGoal сохраняет цель на сегодня и зеркалит её в TodayGoal.
// Первое выполнение непустой цели за дату приносит бонус XPDailyGoal.
func (m *mutation) setTodayGoal(g DailyGoal, wasAchieved bool) {
	reward := g.Achieved && !wasAchieved && !g.Rewarded &&
		(g.LessonsTarget > 0 || g.MinutesTarget > 0)
	if reward {
		g.Rewarded = true
	}
	m.rec.DailyGoals[g.Date] = g
	mirror := g
	m.rec.TodayGoal = &mirror
	m.changed = true

	if reward {
		m.emit(shared.DailyGoalAchievedEvent{BaseEvent: m.base(shared.EventDailyGoalAchieved), Date: g.Date})
		m.credit(XPDailyGoal, ReasonDailyGoalAchieved, "")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// AddXP начисляет опыт и проверяет достижения. Неположительная сумма
// игнорируется, чтобы XP не убывал.
func (e *Engine) AddXP(ctx context.Context, amount int, reason, lessonID string) error {
	if amount <= 0 {
		e.log.Debug("ignoring non-positive xp", logger.XPAmount(amount), logger.String("reason", reason))
		return nil
	}
	return e.mutate(ctx, "AddXP", func(m *mutation) {
		m.addXP(amount, reason, lessonID)
	})
}

// StartSession начинает сессию по уроку. Незавершённая предыдущая сессия
// отбрасывается без опыта и без записи в историю.
func (e *Engine) StartSession(ctx context.Context, lessonID string) (StudySession, error) {
	var started StudySession
	err := e.mutate(ctx, "StartSession", func(m *mutation) {
		if prev := m.rec.ActiveSession; prev != nil {
			e.log.Warn("discarding unfinished session",
				logger.SessionID(prev.ID), logger.LessonID(prev.LessonID))
		}
		started = StudySession{
			ID:        e.newID(),
			LessonID:  strings.TrimSpace(lessonID),
			StartTime: m.now,
		}
		s := started
		m.rec.ActiveSession = &s
		m.changed = true
	})
	if err != nil {
		return StudySession{}, err
	}
	return started, nil
}

// EndSession завершает активную сессию. Без активной сессии возвращает
// (nil, nil).
func (e *Engine) EndSession(ctx context.Context, completed bool, quizScore *int) (*StudySession, error) {
	if e.rec.ActiveSession == nil {
		return nil, nil
	}

	var finished StudySession
	err := e.mutate(ctx, "EndSession", func(m *mutation) {
		r := m.rec
		s := *r.ActiveSession
		end := m.now
		s.EndTime = &end
		s.Duration = int(end.Sub(s.StartTime) / time.Second)
		if s.Duration < 0 {
			s.Duration = 0
		}
		s.Completed = completed
		s.QuizScore = shared.ClampScorePtr(quizScore)
		s.XPEarned = 0
		if completed {
			s.XPEarned = LessonXP(s.QuizScore, s.Duration)
		}

		r.Sessions = append(r.Sessions, s)
		if n := len(r.Sessions); n > MaxSessionHistory {
			r.Sessions = append([]StudySession(nil), r.Sessions[n-MaxSessionHistory:]...)
		}
		r.Counters.addSession(s)
		r.ActiveSession = nil
		m.changed = true

		if completed {
			if g, ok := r.DailyGoals[m.today]; ok {
				was := g.Achieved
				g.LessonsCompleted++
				g.MinutesCompleted += s.Duration / 60
				g.recompute()
				m.setTodayGoal(g, was)
			}
		}

		m.emit(shared.SessionEndedEvent{
			BaseEvent: m.base(shared.EventSessionEnded),
			SessionID: s.ID,
			LessonID:  s.LessonID,
			Completed: s.Completed,
			Duration:  s.Duration,
			XPEarned:  s.XPEarned,
			QuizScore: s.QuizScore,
		})

		if completed {
			m.addXP(s.XPEarned, ReasonLessonCompleted, s.LessonID)
			m.updateStreak()
		}
		m.checkAchievements()
		finished = s.clone()
	})
	if err != nil {
		return nil, err
	}
	return &finished, nil
}

// UpdateStreak засчитывает сегодняшний день в серию.
func (e *Engine) UpdateStreak(ctx context.Context) error {
	return e.mutate(ctx, "UpdateStreak", func(m *mutation) {
		m.updateStreak()
	})
}

// SetDailyGoal задаёт цель на сегодня с обнулёнными счётчиками.
// Отрицательные цели приводятся к нулю.
func (e *Engine) SetDailyGoal(ctx context.Context, lessonsTarget, minutesTarget int) error {
	return e.mutate(ctx, "SetDailyGoal", func(m *mutation) {
		prev, existed := m.rec.DailyGoals[m.today]
		g := DailyGoal{
			Date:          m.today,
			LessonsTarget: max(lessonsTarget, 0),
			MinutesTarget: max(minutesTarget, 0),
			Rewarded:      existed && prev.Rewarded,
		}
		// Пустая цель 0/0 сразу выполнена, но бонуса не даёт.
		g.recompute()
		m.setTodayGoal(g, false)
	})
}

// UpdateDailyProgress перезаписывает сегодняшние счётчики. Без цели на
// сегодня ничего не делает.
func (e *Engine) UpdateDailyProgress(ctx context.Context, lessonsCompleted, minutesCompleted int) error {
	return e.mutate(ctx, "UpdateDailyProgress", func(m *mutation) {
		g, ok := m.rec.DailyGoals[m.today]
		if !ok {
			return
		}
		was := g.Achieved
		g.LessonsCompleted = max(lessonsCompleted, 0)
		g.MinutesCompleted = max(minutesCompleted, 0)
		g.recompute()
		m.setTodayGoal(g, was)
	})
}

// CheckAchievements заново проверяет все правила.
func (e *Engine) CheckAchievements(ctx context.Context) error {
	return e.mutate(ctx, "CheckAchievements", func(m *mutation) {
		m.checkAchievements()
	})
}

// ResetProgress заменяет всё состояние начальным.
func (e *Engine) ResetProgress(ctx context.Context) error {
	return e.mutate(ctx, "ResetProgress", func(m *mutation) {
		*m.rec = *NewRecord(e.freezes)
		m.changed = true
		m.emit(shared.ProgressResetEvent{BaseEvent: m.base(shared.EventProgressReset)})
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// READS
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot возвращает копию текущей записи.
func (e *Engine) Snapshot() *Record { return e.rec.Clone() }

// XP - текущий опыт.
func (e *Engine) XP() int { return e.rec.XP }

// Level - текущий уровень.
func (e *Engine) Level() int { return e.rec.Level }

// Streak - текущая серия.
func (e *Engine) Streak() Streak { return e.rec.Streak }

// ActiveSession возвращает активную сессию, если она есть.
func (e *Engine) ActiveSession() (StudySession, bool) {
	if e.rec.ActiveSession == nil {
		return StudySession{}, false
	}
	return e.rec.ActiveSession.clone(), true
}

// TodayGoal возвращает цель на текущую календарную дату.
func (e *Engine) TodayGoal() (DailyGoal, bool) {
	g, ok := e.rec.DailyGoals[e.calendar.Today()]
	return g, ok
}

// Achievements возвращает открытые достижения в порядке открытия.
func (e *Engine) Achievements() []Achievement {
	return append([]Achievement(nil), e.rec.Achievements...)
}

// AchievementCatalog возвращает набор правил движка.
func (e *Engine) AchievementCatalog() *AchievementCatalog { return e.achievements }

// Stats считает производную статистику по текущему состоянию.
func (e *Engine) Stats() Stats {
	return ComputeStats(e.rec, e.achievements)
}

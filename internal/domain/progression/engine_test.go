package progression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
	"github.com/ZapTalk/zaptalk.github.io/pkg/logger"
	"github.com/ZapTalk/zaptalk.github.io/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

type memRepo struct {
	rec      *Record
	saves    int
	failWith error
}

func (r *memRepo) Load(_ context.Context, _ string) (*Record, error) {
	if r.rec == nil {
		return nil, shared.NewDomainError("progression", "Load", shared.ErrNotFound, "no record")
	}
	return r.rec.Clone(), nil
}

func (r *memRepo) Save(_ context.Context, _ string, rec *Record) error {
	if r.failWith != nil {
		return r.failWith
	}
	r.saves++
	r.rec = rec.Clone()
	return nil
}

type recorder struct {
	events []shared.Event
}

func (r *recorder) Publish(e shared.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []shared.EventType {
	out := make([]shared.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType()
	}
	return out
}

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	engine *Engine
	repo   *memRepo
	clock  *timeutil.FixedClock
	events *recorder
}

func newFixture(t *testing.T, stored *Record) *fixture {
	t.Helper()
	f := &fixture{
		repo:   &memRepo{rec: stored},
		clock:  timeutil.NewFixedClock(testNow),
		events: &recorder{},
	}
	seq := 0
	f.engine = NewEngine("user-1", f.repo,
		WithCalendar(timeutil.NewCalendar(f.clock, time.UTC)),
		WithPublisher(f.events),
		WithLogger(logger.Nop()),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	)
	require.NoError(t, f.engine.Load(context.Background()))
	return f
}

func (f *fixture) completeLesson(t *testing.T, lessonID string, took time.Duration, score *int) *StudySession {
	t.Helper()
	ctx := context.Background()
	_, err := f.engine.StartSession(ctx, lessonID)
	require.NoError(t, err)
	f.clock.Advance(took)
	s, err := f.engine.EndSession(ctx, true, score)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func withStreak(s Streak) *Record {
	rec := NewRecord(DefaultFreezeTokens)
	rec.Streak = s
	return rec
}

func countAchievement(rec *Record, id string) int {
	n := 0
	for _, a := range rec.Achievements {
		if a.ID == id {
			n++
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestEngine_PerfectLessonCompletion(t *testing.T) {
	f := newFixture(t, nil)

	s := f.completeLesson(t, "A1-L01", 90*time.Second, shared.IntPtr(100))
	assert.Equal(t, 95, s.XPEarned)
	assert.Equal(t, 90, s.Duration)
	assert.True(t, s.Completed)

	rec := f.engine.Snapshot()
	var lessonTx []XPTransaction
	for _, tx := range rec.Transactions {
		if tx.Reason == ReasonLessonCompleted {
			lessonTx = append(lessonTx, tx)
		}
	}
	require.Len(t, lessonTx, 1)
	assert.Equal(t, 95, lessonTx[0].Amount)
	assert.Equal(t, "A1-L01", lessonTx[0].LessonID)

	// First lesson and first perfect quiz unlock on the same completion.
	assert.True(t, rec.HasAchievement("lessons-1"))
	assert.True(t, rec.HasAchievement("perfect-score"))
	assert.Equal(t, 95+10+25, rec.XP)
	assert.Equal(t, 2, rec.Level)

	// A repeat completion unlocks nothing new, so XP grows by exactly 95.
	before := f.engine.XP()
	f.completeLesson(t, "A1-L01", 90*time.Second, shared.IntPtr(100))
	assert.Equal(t, before+95, f.engine.XP())
}

func TestEngine_EndSessionWithoutActiveIsNoop(t *testing.T) {
	f := newFixture(t, nil)

	s, err := f.engine.EndSession(context.Background(), true, shared.IntPtr(100))
	assert.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, 0, f.repo.saves)
	assert.Empty(t, f.events.events)
}

func TestEngine_AbandonedSessionGivesNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.engine.StartSession(ctx, "A1-L02")
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)
	s, err := f.engine.EndSession(ctx, false, shared.IntPtr(100))
	require.NoError(t, err)

	assert.Equal(t, 0, s.XPEarned)
	assert.False(t, s.Completed)

	rec := f.engine.Snapshot()
	assert.Len(t, rec.Sessions, 1)
	assert.Empty(t, rec.Transactions)
	assert.Equal(t, 0, rec.XP)
	assert.Equal(t, 0, rec.Counters.PerfectScores)
	assert.Equal(t, "", rec.Streak.LastCompletedDate)
	assert.Nil(t, rec.ActiveSession)
}

func TestEngine_StartSessionDiscardsPrevious(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.engine.StartSession(ctx, "A1-L01")
	require.NoError(t, err)
	second, err := f.engine.StartSession(ctx, "A1-L02")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	active, ok := f.engine.ActiveSession()
	require.True(t, ok)
	assert.Equal(t, "A1-L02", active.LessonID)

	f.clock.Advance(5 * time.Minute)
	_, err = f.engine.EndSession(ctx, true, nil)
	require.NoError(t, err)

	rec := f.engine.Snapshot()
	require.Len(t, rec.Sessions, 1)
	assert.Equal(t, second.ID, rec.Sessions[0].ID)
}

func TestEngine_SessionHistoryIsBounded(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var firstID string
	for i := 0; i < MaxSessionHistory+5; i++ {
		s, err := f.engine.StartSession(ctx, "A1-L01")
		require.NoError(t, err)
		if i == 0 {
			firstID = s.ID
		}
		_, err = f.engine.EndSession(ctx, false, nil)
		require.NoError(t, err)
	}

	rec := f.engine.Snapshot()
	assert.Len(t, rec.Sessions, MaxSessionHistory)
	assert.NotEqual(t, firstID, rec.Sessions[0].ID)
}

// ══════════════════════════════════════════════════════════════════════════════
// XP
// ══════════════════════════════════════════════════════════════════════════════

func TestEngine_AddXP(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.engine.AddXP(ctx, 120, "Bonus", ""))
	assert.Equal(t, 120, f.engine.XP())
	assert.Equal(t, 2, f.engine.Level())
	assert.Contains(t, f.events.types(), shared.EventLevelUp)

	require.NoError(t, f.engine.AddXP(ctx, 0, "nothing", ""))
	require.NoError(t, f.engine.AddXP(ctx, -40, "refund", ""))
	assert.Equal(t, 120, f.engine.XP())
	assert.Len(t, f.engine.Snapshot().Transactions, 1)
}

func TestEngine_TransactionHistoryIsBounded(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < MaxTransactionHistory+10; i++ {
		require.NoError(t, f.engine.AddXP(ctx, 1, fmt.Sprintf("tick %d", i), ""))
	}

	rec := f.engine.Snapshot()
	assert.Len(t, rec.Transactions, MaxTransactionHistory)
	assert.Equal(t, "tick 10", rec.Transactions[0].Reason)
	assert.Equal(t, MaxTransactionHistory+10, rec.XP)
}

func TestEngine_StorageFailureRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.engine.AddXP(ctx, 50, "seed", ""))

	f.repo.failWith = errors.New("disk full")
	err := f.engine.AddXP(ctx, 500, "lost", "")
	require.Error(t, err)
	assert.True(t, shared.IsStorage(err))

	assert.Equal(t, 50, f.engine.XP())
	assert.Len(t, f.engine.Snapshot().Transactions, 1)
	assert.Len(t, f.events.events, 1, "events are published only after a successful save")

	_, err = f.engine.StartSession(ctx, "A1-L01")
	assert.Error(t, err)
	_, active := f.engine.ActiveSession()
	assert.False(t, active)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK
// ══════════════════════════════════════════════════════════════════════════════

func TestEngine_UpdateStreak(t *testing.T) {
	tests := []struct {
		name        string
		stored      Streak
		wantCurrent int
		wantLongest int
		wantFreezes int
		wantDays    int
	}{
		{
			name:        "first ever keeps freezes",
			stored:      Streak{FreezesAvailable: 2},
			wantCurrent: 1, wantLongest: 1, wantFreezes: 2, wantDays: 1,
		},
		{
			name:        "yesterday increments",
			stored:      Streak{Current: 4, Longest: 4, LastCompletedDate: "2025-03-09", FreezesAvailable: 2, TotalDaysStudied: 4},
			wantCurrent: 5, wantLongest: 5, wantFreezes: 2, wantDays: 5,
		},
		{
			name:        "three day gap spends a freeze",
			stored:      Streak{Current: 6, Longest: 9, LastCompletedDate: "2025-03-07", FreezesAvailable: 1, TotalDaysStudied: 12},
			wantCurrent: 7, wantLongest: 9, wantFreezes: 0, wantDays: 13,
		},
		{
			name:        "gap without freezes resets",
			stored:      Streak{Current: 6, Longest: 9, LastCompletedDate: "2025-03-01", TotalDaysStudied: 12},
			wantCurrent: 1, wantLongest: 9, wantFreezes: 0, wantDays: 13,
		},
		{
			name:        "date in the future resets",
			stored:      Streak{Current: 3, Longest: 3, LastCompletedDate: "2025-04-01", FreezesAvailable: 2, TotalDaysStudied: 3},
			wantCurrent: 1, wantLongest: 3, wantFreezes: 2, wantDays: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, withStreak(tt.stored))
			require.NoError(t, f.engine.UpdateStreak(context.Background()))

			s := f.engine.Streak()
			assert.Equal(t, tt.wantCurrent, s.Current)
			assert.Equal(t, tt.wantLongest, s.Longest)
			assert.Equal(t, tt.wantFreezes, s.FreezesAvailable)
			assert.Equal(t, tt.wantDays, s.TotalDaysStudied)
			assert.Equal(t, "2025-03-10", s.LastCompletedDate)
		})
	}
}

func TestEngine_UpdateStreakTwiceSameDay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.engine.UpdateStreak(ctx))
	saves := f.repo.saves
	require.NoError(t, f.engine.UpdateStreak(ctx))

	assert.Equal(t, 1, f.engine.Streak().Current)
	assert.Equal(t, 1, f.engine.Streak().TotalDaysStudied)
	assert.Equal(t, saves, f.repo.saves)
}

func TestEngine_StreakAcrossDays(t *testing.T) {
	f := newFixture(t, nil)

	for day := 0; day < 3; day++ {
		f.completeLesson(t, "A1-L01", 4*time.Minute, nil)
		f.clock.Advance(24 * time.Hour)
	}

	assert.Equal(t, 3, f.engine.Streak().Current)
	assert.True(t, f.engine.Snapshot().HasAchievement("streak-3"))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

func TestEngine_AchievementsArePermanent(t *testing.T) {
	stored := NewRecord(DefaultFreezeTokens)
	stored.Counters.CompletedLessons = 5
	f := newFixture(t, stored)
	ctx := context.Background()

	require.NoError(t, f.engine.CheckAchievements(ctx))
	xp := f.engine.XP()
	for i := 0; i < 5; i++ {
		require.NoError(t, f.engine.CheckAchievements(ctx))
	}

	rec := f.engine.Snapshot()
	assert.Equal(t, 1, countAchievement(rec, "lessons-5"))
	assert.Equal(t, 1, countAchievement(rec, "lessons-1"))
	assert.Equal(t, xp, rec.XP)

	a := rec.Achievements[len(rec.Achievements)-1]
	assert.Equal(t, 100, a.Progress)
	assert.Equal(t, a.Requirement, a.CurrentValue)
	assert.Equal(t, testNow, a.UnlockedAt)
}

func TestEngine_AchievementRewardIsTransaction(t *testing.T) {
	stored := NewRecord(DefaultFreezeTokens)
	stored.Counters.FastCompletions = 10
	f := newFixture(t, stored)

	require.NoError(t, f.engine.CheckAchievements(context.Background()))

	rec := f.engine.Snapshot()
	require.True(t, rec.HasAchievement("speed-demon"))
	require.Len(t, rec.Transactions, 1)
	assert.Equal(t, "Achievement: Speed Demon", rec.Transactions[0].Reason)
	assert.Equal(t, 100, rec.Transactions[0].Amount)
	assert.Equal(t, []shared.EventType{shared.EventAchievementUnlocked, shared.EventXPGained, shared.EventLevelUp}, f.events.types())
}

func TestEngine_LessonMilestoneBeyondHistory(t *testing.T) {
	stored := NewRecord(DefaultFreezeTokens)
	stored.Counters.CompletedLessons = 249
	f := newFixture(t, stored)

	f.completeLesson(t, "A1-L03", 10*time.Minute, nil)
	assert.True(t, f.engine.Snapshot().HasAchievement("lessons-250"))
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY GOALS
// ══════════════════════════════════════════════════════════════════════════════

func TestEngine_DailyGoalTrackedBySessions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.engine.SetDailyGoal(ctx, 1, 1))
	goal, ok := f.engine.TodayGoal()
	require.True(t, ok)
	assert.False(t, goal.Achieved)

	f.completeLesson(t, "A1-L02", 90*time.Second, nil)

	goal, _ = f.engine.TodayGoal()
	assert.Equal(t, 1, goal.LessonsCompleted)
	assert.Equal(t, 1, goal.MinutesCompleted)
	assert.True(t, goal.Achieved)

	rec := f.engine.Snapshot()
	require.NotNil(t, rec.TodayGoal)
	assert.Equal(t, goal, *rec.TodayGoal)

	var bonus int
	for _, tx := range rec.Transactions {
		if tx.Reason == ReasonDailyGoalAchieved {
			bonus += tx.Amount
		}
	}
	assert.Equal(t, XPDailyGoal, bonus)
	assert.Contains(t, f.events.types(), shared.EventDailyGoalAchieved)

	// Resetting the same day's goal does not pay the bonus again.
	require.NoError(t, f.engine.SetDailyGoal(ctx, 1, 0))
	require.NoError(t, f.engine.UpdateDailyProgress(ctx, 1, 0))
	goal, _ = f.engine.TodayGoal()
	assert.True(t, goal.Achieved)
	bonus = 0
	for _, tx := range f.engine.Snapshot().Transactions {
		if tx.Reason == ReasonDailyGoalAchieved {
			bonus += tx.Amount
		}
	}
	assert.Equal(t, XPDailyGoal, bonus)
}

func TestEngine_PerfectLessonWithGoalCreditsBonusSeparately(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.engine.SetDailyGoal(context.Background(), 1, 0))

	s := f.completeLesson(t, "A1-L01", 90*time.Second, shared.IntPtr(100))
	assert.Equal(t, 95, s.XPEarned)

	var lesson, goal []XPTransaction
	for _, tx := range f.engine.Snapshot().Transactions {
		switch tx.Reason {
		case ReasonLessonCompleted:
			lesson = append(lesson, tx)
		case ReasonDailyGoalAchieved:
			goal = append(goal, tx)
		}
	}
	require.Len(t, lesson, 1)
	assert.Equal(t, 95, lesson[0].Amount)
	assert.Equal(t, "A1-L01", lesson[0].LessonID)
	require.Len(t, goal, 1)
	assert.Equal(t, XPDailyGoal, goal[0].Amount)
	assert.Empty(t, goal[0].LessonID)
}

func TestEngine_EmptyGoalIsAchievedWithoutBonus(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.engine.SetDailyGoal(context.Background(), 0, 0))
	goal, ok := f.engine.TodayGoal()
	require.True(t, ok)
	assert.True(t, goal.Achieved)
	assert.False(t, goal.Rewarded)
	assert.Empty(t, f.engine.Snapshot().Transactions)
	assert.NotContains(t, f.events.types(), shared.EventDailyGoalAchieved)
}

func TestEngine_UpdateDailyProgress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.engine.UpdateDailyProgress(ctx, 3, 30))
	_, ok := f.engine.TodayGoal()
	assert.False(t, ok)
	assert.Equal(t, 0, f.repo.saves)

	require.NoError(t, f.engine.SetDailyGoal(ctx, 2, 20))
	require.NoError(t, f.engine.UpdateDailyProgress(ctx, 2, 15))
	goal, _ := f.engine.TodayGoal()
	assert.False(t, goal.Achieved)

	require.NoError(t, f.engine.UpdateDailyProgress(ctx, 2, 25))
	goal, _ = f.engine.TodayGoal()
	assert.True(t, goal.Achieved)
	assert.Equal(t, 25, goal.MinutesCompleted)
}

func TestEngine_GoalsAreKeyedByDate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.engine.SetDailyGoal(ctx, 2, 10))
	f.clock.Advance(24 * time.Hour)
	_, ok := f.engine.TodayGoal()
	assert.False(t, ok)

	require.NoError(t, f.engine.SetDailyGoal(ctx, 3, 15))
	rec := f.engine.Snapshot()
	assert.Len(t, rec.DailyGoals, 2)
	assert.Equal(t, 2, rec.DailyGoals["2025-03-10"].LessonsTarget)
	assert.Equal(t, 3, rec.DailyGoals["2025-03-11"].LessonsTarget)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

func TestEngine_ResetProgress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.completeLesson(t, "A1-L01", time.Minute, shared.IntPtr(90))
	require.NoError(t, f.engine.SetDailyGoal(ctx, 1, 1))

	require.NoError(t, f.engine.ResetProgress(ctx))

	rec := f.engine.Snapshot()
	assert.Equal(t, 0, rec.XP)
	assert.Equal(t, 1, rec.Level)
	assert.Empty(t, rec.Achievements)
	assert.Empty(t, rec.Sessions)
	assert.Empty(t, rec.DailyGoals)
	assert.Equal(t, Streak{FreezesAvailable: DefaultFreezeTokens}, rec.Streak)
	assert.Equal(t, Counters{}, rec.Counters)
	assert.Equal(t, 0, f.repo.rec.XP)
}

func TestEngine_LoadRestoresState(t *testing.T) {
	f := newFixture(t, nil)
	f.completeLesson(t, "A1-L01", time.Minute, shared.IntPtr(100))

	reloaded := NewEngine("user-1", f.repo, WithLogger(logger.Nop()))
	require.NoError(t, reloaded.Load(context.Background()))
	assert.Equal(t, f.engine.XP(), reloaded.XP())
	assert.Equal(t, f.engine.Achievements(), reloaded.Achievements())
}

func TestRecord_UpgradeFromVersion1(t *testing.T) {
	rec := &Record{
		Version: 1,
		XP:      300,
		Sessions: []StudySession{
			{ID: "a", Completed: true, Duration: 100, QuizScore: shared.IntPtr(100)},
			{ID: "b", Completed: true, Duration: 400, QuizScore: shared.IntPtr(70)},
			{ID: "c", Completed: false, Duration: 50},
		},
	}
	require.NoError(t, rec.Upgrade())

	assert.Equal(t, RecordVersion, rec.Version)
	assert.Equal(t, 3, rec.Level)
	assert.Equal(t, Counters{
		CompletedLessons: 2,
		PerfectScores:    1,
		FastCompletions:  1,
		StudySeconds:     500,
		QuizScoreSum:     170,
		QuizScoreCount:   2,
	}, rec.Counters)
	assert.NotNil(t, rec.DailyGoals)
}

func TestRecord_UpgradeDecodedVersion1Document(t *testing.T) {
	raw := `{"version":1,"xp":120,"sessions":[{"id":"a","lessonId":"A1-L01",` +
		`"startTime":"2025-03-09T10:00:00Z","endTime":"2025-03-09T10:02:00Z",` +
		`"duration":120,"completed":true,"xpEarned":70,"quizScore":100}]}`

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	require.NoError(t, rec.Upgrade())

	require.Len(t, rec.Sessions, 1)
	assert.Equal(t, time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC), rec.Sessions[0].StartTime.UTC())
	assert.Equal(t, 1, rec.Counters.CompletedLessons)
	assert.Equal(t, 1, rec.Counters.PerfectScores)
	assert.Equal(t, 1, rec.Counters.FastCompletions)
	assert.Equal(t, RecordVersion, rec.Version)
}

func TestRecord_EpochMillisecondTimesAreRejected(t *testing.T) {
	raw := `{"version":1,"sessions":[{"id":"a","startTime":1741514400000}]}`

	var rec Record
	assert.Error(t, json.Unmarshal([]byte(raw), &rec))
}

func TestRecord_UpgradeRejectsNewerVersion(t *testing.T) {
	err := (&Record{Version: RecordVersion + 1}).Upgrade()
	assert.ErrorIs(t, err, shared.ErrUnsupportedVersion)
}

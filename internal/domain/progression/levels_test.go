package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
)

func TestXPRequiredForLevel(t *testing.T) {
	assert.Equal(t, 100, XPRequiredForLevel(1))
	assert.Equal(t, 114, XPRequiredForLevel(2))
	assert.Equal(t, 132, XPRequiredForLevel(3))
	assert.Equal(t, 152, XPRequiredForLevel(4))
}

func TestTotalXPForLevel(t *testing.T) {
	assert.Equal(t, 0, TotalXPForLevel(1))
	assert.Equal(t, 100, TotalXPForLevel(2))
	assert.Equal(t, 214, TotalXPForLevel(3))
	assert.Equal(t, 346, TotalXPForLevel(4))
}

func TestLevelFromXP_Boundaries(t *testing.T) {
	tests := []struct {
		xp    int
		level int
	}{
		{-50, 1},
		{0, 1},
		{99, 1},
		{100, 2},
		{213, 2},
		{214, 3},
		{345, 3},
		{346, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, LevelFromXP(tt.xp), "xp=%d", tt.xp)
	}
}

func TestLevelFromXP_RoundTrip(t *testing.T) {
	for n := 1; n <= 100; n++ {
		assert.Equal(t, n, LevelFromXP(TotalXPForLevel(n)), "level %d", n)
		assert.Equal(t, n, LevelFromXP(TotalXPForLevel(n+1)-1), "top of level %d", n)
	}
}

func TestLevelFromXP_Monotonic(t *testing.T) {
	prev := LevelFromXP(0)
	for xp := 1; xp <= 200000; xp += 37 {
		cur := LevelFromXP(xp)
		assert.GreaterOrEqual(t, cur, prev, "xp=%d", xp)
		prev = cur
	}
}

func TestLevelFromXP_CappedAtMaxLevel(t *testing.T) {
	assert.Equal(t, MaxLevel, LevelFromXP(int(^uint(0)>>1)))
}

func TestLevelTitle(t *testing.T) {
	tests := map[int]string{
		0:   "Novice",
		1:   "Novice",
		4:   "Novice",
		5:   "Learner",
		49:  "Professional",
		50:  "Master",
		65:  "Grand Master",
		99:  "Virtuoso",
		100: "Grandmaster",
		180: "Grandmaster",
	}
	for level, title := range tests {
		assert.Equal(t, title, LevelTitle(level), "level %d", level)
	}
}

func TestLessonXP(t *testing.T) {
	tests := []struct {
		name     string
		score    *int
		duration int
		want     int
	}{
		{"perfect and fast", shared.IntPtr(100), 90, 95},
		{"good and slow", shared.IntPtr(85), 600, 65},
		{"pass boundary", shared.IntPtr(60), 180, 60},
		{"below pass", shared.IntPtr(59), 179, 70},
		{"no quiz", nil, 300, 50},
		{"good boundary", shared.IntPtr(80), 200, 65},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LessonXP(tt.score, tt.duration))
		})
	}
}

func TestDefaultAchievements(t *testing.T) {
	c := DefaultAchievements()
	assert.Equal(t, 21, c.Len())

	def, ok := c.ByID("perfect-score")
	assert.True(t, ok)
	assert.Equal(t, 1, def.Requirement)
	assert.Equal(t, MetricPerfectScores, def.Metric)

	for _, id := range []string{"lessons-250", "streak-365", "perfect-50", "speed-demon", "lightning-fast"} {
		_, ok := c.ByID(id)
		assert.True(t, ok, id)
	}
}

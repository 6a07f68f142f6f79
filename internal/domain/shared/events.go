package shared

import (
	"encoding/json"
	"time"
)

// EventType - тип доменного события.
type EventType string

const (
	EventXPGained            EventType = "progression.xp_gained"
	EventLevelUp             EventType = "progression.level_up"
	EventAchievementUnlocked EventType = "progression.achievement_unlocked"
	EventStreakUpdated       EventType = "progression.streak_updated"
	EventSessionEnded        EventType = "progression.session_ended"
	EventDailyGoalAchieved   EventType = "progression.daily_goal_achieved"
	EventProgressReset       EventType = "progression.reset"

	EventEntitlementGranted EventType = "entitlement.granted"
	EventLessonProgress     EventType = "entitlement.lesson_progress"

	EventPaymentFailed EventType = "payment.failed"
)

// Event - интерфейс доменного события.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	// AggregateID - идентификатор пользователя, к которому относится событие.
	AggregateID() string
	Payload() map[string]any
}

// BaseEvent реализует общую часть Event.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateId }

// NewBaseEvent создаёт базовое событие с моментом at.
func NewBaseEvent(eventType EventType, userID string, at time.Time) BaseEvent {
	return BaseEvent{Type: eventType, Timestamp: at, AggregateId: userID}
}

// ═══════════════════════════════════════════════════════════════════════════
// Прогресс
// ═══════════════════════════════════════════════════════════════════════════

// XPGainedEvent - начислен опыт.
type XPGainedEvent struct {
	BaseEvent
	Amount   int    `json:"amount"`
	NewTotal int    `json:"new_total"`
	Reason   string `json:"reason"`
	LessonID string `json:"lesson_id,omitempty"`
}

func (e XPGainedEvent) Payload() map[string]any {
	return map[string]any{
		"amount":    e.Amount,
		"new_total": e.NewTotal,
		"reason":    e.Reason,
		"lesson_id": e.LessonID,
	}
}

func NewXPGainedEvent(userID string, at time.Time, amount, newTotal int, reason, lessonID string) XPGainedEvent {
	return XPGainedEvent{
		BaseEvent: NewBaseEvent(EventXPGained, userID, at),
		Amount:    amount,
		NewTotal:  newTotal,
		Reason:    reason,
		LessonID:  lessonID,
	}
}

// LevelUpEvent - пользователь перешёл на новый уровень.
type LevelUpEvent struct {
	BaseEvent
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
	Title    string `json:"title"`
}

func (e LevelUpEvent) Payload() map[string]any {
	return map[string]any{"old_level": e.OldLevel, "new_level": e.NewLevel, "title": e.Title}
}

func NewLevelUpEvent(userID string, at time.Time, oldLevel, newLevel int, title string) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID, at),
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		Title:     title,
	}
}

// AchievementUnlockedEvent - открыто достижение.
type AchievementUnlockedEvent struct {
	BaseEvent
	AchievementID string `json:"achievement_id"`
	Title         string `json:"title"`
	XPReward      int    `json:"xp_reward"`
}

func (e AchievementUnlockedEvent) Payload() map[string]any {
	return map[string]any{"achievement_id": e.AchievementID, "title": e.Title, "xp_reward": e.XPReward}
}

func NewAchievementUnlockedEvent(userID string, at time.Time, id, title string, reward int) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, userID, at),
		AchievementID: id,
		Title:         title,
		XPReward:      reward,
	}
}

// StreakUpdatedEvent - серия изменилась (выросла, сброшена или спасена заморозкой).
type StreakUpdatedEvent struct {
	BaseEvent
	Current     int  `json:"current"`
	Longest     int  `json:"longest"`
	FreezeUsed  bool `json:"freeze_used"`
	WasReset    bool `json:"was_reset"`
	FreezesLeft int  `json:"freezes_left"`
}

func (e StreakUpdatedEvent) Payload() map[string]any {
	return map[string]any{
		"current":      e.Current,
		"longest":      e.Longest,
		"freeze_used":  e.FreezeUsed,
		"was_reset":    e.WasReset,
		"freezes_left": e.FreezesLeft,
	}
}

// SessionEndedEvent - учебная сессия завершена или брошена.
type SessionEndedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	LessonID  string `json:"lesson_id"`
	Completed bool   `json:"completed"`
	Duration  int    `json:"duration"`
	XPEarned  int    `json:"xp_earned"`
	QuizScore *int   `json:"quiz_score,omitempty"`
}

func (e SessionEndedEvent) Payload() map[string]any {
	p := map[string]any{
		"session_id": e.SessionID,
		"lesson_id":  e.LessonID,
		"completed":  e.Completed,
		"duration":   e.Duration,
		"xp_earned":  e.XPEarned,
	}
	if e.QuizScore != nil {
		p["quiz_score"] = *e.QuizScore
	}
	return p
}

// DailyGoalAchievedEvent - дневная цель выполнена.
type DailyGoalAchievedEvent struct {
	BaseEvent
	Date string `json:"date"`
}

func (e DailyGoalAchievedEvent) Payload() map[string]any {
	return map[string]any{"date": e.Date}
}

// ProgressResetEvent - прогресс пользователя полностью сброшен.
type ProgressResetEvent struct {
	BaseEvent
}

func (e ProgressResetEvent) Payload() map[string]any { return map[string]any{} }

// ═══════════════════════════════════════════════════════════════════════════
// Доступ и покупки
// ═══════════════════════════════════════════════════════════════════════════

// EntitlementGrantedEvent - пользователь получил SKU.
type EntitlementGrantedEvent struct {
	BaseEvent
	SkuID     string `json:"sku_id"`
	Source    string `json:"source"`
	ReceiptID string `json:"receipt_id,omitempty"`
}

func (e EntitlementGrantedEvent) Payload() map[string]any {
	return map[string]any{"sku_id": e.SkuID, "source": e.Source, "receipt_id": e.ReceiptID}
}

// LessonProgressEvent - записан результат урока.
type LessonProgressEvent struct {
	BaseEvent
	LessonID  string `json:"lesson_id"`
	Completed bool   `json:"completed"`
	Score     *int   `json:"score,omitempty"`
}

func (e LessonProgressEvent) Payload() map[string]any {
	p := map[string]any{"lesson_id": e.LessonID, "completed": e.Completed}
	if e.Score != nil {
		p["score"] = *e.Score
	}
	return p
}

// PaymentFailedEvent - платёж не прошёл.
type PaymentFailedEvent struct {
	BaseEvent
	SkuID    string `json:"sku_id"`
	Provider string `json:"provider"`
	Message  string `json:"message"`
}

func (e PaymentFailedEvent) Payload() map[string]any {
	return map[string]any{"sku_id": e.SkuID, "provider": e.Provider, "message": e.Message}
}

// ═══════════════════════════════════════════════════════════════════════════
// Транспорт
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope - сериализованное событие для внешних подписчиков.
type EventEnvelope struct {
	Type        EventType       `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

// NewEnvelope сериализует событие.
func NewEnvelope(e Event) (EventEnvelope, error) {
	payload, err := json.Marshal(e.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	return EventEnvelope{
		Type:        e.EventType(),
		AggregateID: e.AggregateID(),
		Timestamp:   e.OccurredAt(),
		Payload:     payload,
	}, nil
}

// EventHandler обрабатывает событие.
type EventHandler func(event Event) error

// EventPublisher публикует события подписчикам.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber регистрирует обработчики.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// EventBus объединяет публикацию и подписку.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher отбрасывает события.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) error { return nil }

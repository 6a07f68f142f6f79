package entitlement

import (
	"context"
	"strings"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/catalog"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
	"github.com/ZapTalk/zaptalk.github.io/pkg/logger"
	"github.com/ZapTalk/zaptalk.github.io/pkg/timeutil"
)

// Catalog - то, что хранилищу нужно от справочных данных.
type Catalog interface {
	LessonByID(id string) (catalog.Lesson, bool)
	ModuleByID(id string) (catalog.Module, bool)
	SKUByID(id string) (catalog.SKU, bool)
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store владеет доступами и прогрессом одного пользователя.
//
// Как и progression.Engine, Store меняет копию записи и принимает её только
// после успешного Save. Вызовы сериализует владелец.
type Store struct {
	userID    string
	catalog   Catalog
	repo      Repository
	clock     timeutil.Clock
	publisher shared.EventPublisher
	log       *logger.Logger

	rec *Record
}

// Option настраивает Store.
type Option func(*Store)

func WithClock(c timeutil.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithPublisher(p shared.EventPublisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// NewStore создаёт пустое хранилище. Сохранённое состояние подтягивается
// вызовом Load.
func NewStore(userID string, cat Catalog, repo Repository, opts ...Option) *Store {
	s := &Store{
		userID:    userID,
		catalog:   cat,
		repo:      repo,
		clock:     timeutil.SystemClock{},
		publisher: shared.NopPublisher{},
		rec:       NewRecord(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Default()
	}
	s.log = s.log.With(logger.Component("entitlement"), logger.UserID(userID))
	return s
}

// Load читает сохранённое состояние. Отсутствие записи - не ошибка.
func (s *Store) Load(ctx context.Context) error {
	rec, err := s.repo.Load(ctx, s.userID)
	if err != nil {
		if shared.IsNotFound(err) {
			s.rec = NewRecord()
			return nil
		}
		return shared.StorageError("entitlement", "Load", err)
	}
	if err := rec.Upgrade(); err != nil {
		return err
	}
	s.rec = rec
	return nil
}

func (s *Store) commit(ctx context.Context, op string, next *Record, events ...shared.Event) error {
	if err := s.repo.Save(ctx, s.userID, next); err != nil {
		s.log.Error("save entitlements failed", logger.Operation(op), logger.Err(err))
		return shared.StorageError("entitlement", op, err)
	}
	s.rec = next
	for _, ev := range events {
		if err := s.publisher.Publish(ev); err != nil {
			s.log.Warn("publish event failed",
				logger.Operation(op),
				logger.String("event_type", string(ev.EventType())),
				logger.Err(err))
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Grant выдаёт SKU. Повторная выдача и неизвестный SKU ничего не меняют.
// Возвращает true, если доступ был выдан этим вызовом.
func (s *Store) Grant(ctx context.Context, skuID string, source Source, receiptID string) (bool, error) {
	skuID = strings.TrimSpace(skuID)
	if _, owned := s.rec.entitlement(skuID); owned {
		return false, nil
	}
	if _, ok := s.catalog.SKUByID(skuID); !ok {
		s.log.Warn("grant for unknown sku ignored", logger.SkuID(skuID))
		return false, nil
	}

	now := s.clock.Now()
	next := s.rec.Clone()
	next.Entitlements = append(next.Entitlements, Entitlement{
		SkuID:     skuID,
		GrantedAt: now,
		Source:    source,
		ReceiptID: receiptID,
	})

	ev := shared.EntitlementGrantedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventEntitlementGranted, s.userID, now),
		SkuID:     skuID,
		Source:    string(source),
		ReceiptID: receiptID,
	}
	if err := s.commit(ctx, "Grant", next, ev); err != nil {
		return false, err
	}
	s.log.Info("entitlement granted", logger.SkuID(skuID), logger.String("source", string(source)))
	return true, nil
}

// RecordProgress записывает результат урока поверх предыдущего.
// Урок не из каталога игнорируется.
func (s *Store) RecordProgress(ctx context.Context, lessonID string, completed bool, score *int) error {
	lessonID = strings.TrimSpace(lessonID)
	if _, ok := s.catalog.LessonByID(lessonID); !ok {
		s.log.Debug("progress for unknown lesson ignored", logger.LessonID(lessonID))
		return nil
	}

	now := s.clock.Now()
	p := LessonProgress{
		LessonID:       lessonID,
		Completed:      completed,
		Score:          shared.ClampScorePtr(score),
		LastAccessedAt: now,
	}
	next := s.rec.Clone()
	if i := next.progressIndex(lessonID); i >= 0 {
		next.Progress[i] = p
	} else {
		next.Progress = append(next.Progress, p)
	}

	return s.commit(ctx, "RecordProgress", next, shared.LessonProgressEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventLessonProgress, s.userID, now),
		LessonID:  lessonID,
		Completed: completed,
		Score:     shared.ClampScorePtr(p.Score),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// HasEntitlement проверяет владение SKU.
func (s *Store) HasEntitlement(skuID string) bool {
	_, ok := s.rec.entitlement(skuID)
	return ok
}

// Entitlement возвращает запись о владении SKU.
func (s *Store) Entitlement(skuID string) (Entitlement, bool) {
	return s.rec.entitlement(skuID)
}

// HasAccess решает, можно ли открыть урок: бесплатный урок, либо SKU
// урока, модуля или уровня.
func (s *Store) HasAccess(lessonID string) bool {
	lesson, ok := s.catalog.LessonByID(lessonID)
	if !ok {
		return false
	}
	if lesson.IsFree {
		return true
	}
	return s.HasEntitlement(catalog.SKUID(catalog.SkuLesson, lesson.ID)) ||
		s.HasEntitlement(catalog.SKUID(catalog.SkuModule, lesson.ModuleID)) ||
		s.HasEntitlement(catalog.SKUID(catalog.SkuLevel, string(lesson.Level)))
}

// Covers сообщает, что покупка skuID ничего не добавит: SKU уже куплен,
// либо его содержимое открыто более широким SKU (модулем или уровнем).
func (s *Store) Covers(skuID string) bool {
	if s.HasEntitlement(skuID) {
		return true
	}
	sku, ok := s.catalog.SKUByID(skuID)
	if !ok {
		return false
	}
	switch sku.Type {
	case catalog.SkuLesson:
		return s.HasAccess(sku.RefID)
	case catalog.SkuModule:
		module, ok := s.catalog.ModuleByID(sku.RefID)
		return ok && s.HasEntitlement(catalog.SKUID(catalog.SkuLevel, string(module.Level)))
	}
	return false
}

// GetProgress возвращает результат урока, если он есть.
func (s *Store) GetProgress(lessonID string) (LessonProgress, bool) {
	i := s.rec.progressIndex(lessonID)
	if i < 0 {
		return LessonProgress{}, false
	}
	return s.rec.Progress[i].clone(), true
}

// Entitlements возвращает все доступы в порядке выдачи.
func (s *Store) Entitlements() []Entitlement {
	return append([]Entitlement(nil), s.rec.Entitlements...)
}

// AllProgress возвращает результаты всех уроков.
func (s *Store) AllProgress() []LessonProgress {
	out := make([]LessonProgress, len(s.rec.Progress))
	for i, p := range s.rec.Progress {
		out[i] = p.clone()
	}
	return out
}

// CompletedLessons возвращает множество завершённых уроков.
func (s *Store) CompletedLessons() map[string]bool {
	out := make(map[string]bool, len(s.rec.Progress))
	for _, p := range s.rec.Progress {
		if p.Completed {
			out[p.LessonID] = true
		}
	}
	return out
}

// Snapshot возвращает копию записи.
func (s *Store) Snapshot() *Record { return s.rec.Clone() }


// Package entitlement хранит купленные пользователем SKU и результаты уроков
// и отвечает на вопрос "можно ли открыть этот урок".
//
// Доступ к уроку трёхуровневый: урок < модуль < уровень. Владение более
// широким SKU открывает все уроки внутри него, обратное не верно.
package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
)

// RecordVersion - текущая версия схемы сохранённого состояния.
const RecordVersion = 1

// Source - канал, через который был получен SKU.
type Source string

const (
	SourceNostrZap     Source = "nostr-zap"
	SourceWeblnInvoice Source = "webln-invoice"
)

// Entitlement - факт владения SKU. После создания не меняется.
type Entitlement struct {
	SkuID     string    `json:"skuId"`
	GrantedAt time.Time `json:"grantedAt"`
	Source    Source    `json:"source"`
	ReceiptID string    `json:"nostrEventId,omitempty"`
}

// LessonProgress - последний результат урока. Новая запись полностью
// заменяет предыдущую.
type LessonProgress struct {
	LessonID       string    `json:"lessonId"`
	Completed      bool      `json:"completed"`
	Score          *int      `json:"score,omitempty"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
}

func (p LessonProgress) clone() LessonProgress {
	p.Score = shared.ClampScorePtr(p.Score)
	return p
}

// Record - сохраняемое состояние доступа одного пользователя.
type Record struct {
	Version      int              `json:"version"`
	Entitlements []Entitlement    `json:"entitlements"`
	Progress     []LessonProgress `json:"progress"`
}

// NewRecord возвращает пустое состояние.
func NewRecord() *Record {
	return &Record{
		Version:      RecordVersion,
		Entitlements: []Entitlement{},
		Progress:     []LessonProgress{},
	}
}

// Clone делает глубокую копию.
func (r *Record) Clone() *Record {
	out := &Record{
		Version:      r.Version,
		Entitlements: append([]Entitlement{}, r.Entitlements...),
		Progress:     make([]LessonProgress, len(r.Progress)),
	}
	for i, p := range r.Progress {
		out.Progress[i] = p.clone()
	}
	return out
}

// Upgrade приводит запись к текущей схеме.
func (r *Record) Upgrade() error {
	if r.Version > RecordVersion {
		return shared.NewDomainError("entitlement", "Upgrade", shared.ErrUnsupportedVersion,
			fmt.Sprintf("record version %d is newer than %d", r.Version, RecordVersion))
	}
	if r.Entitlements == nil {
		r.Entitlements = []Entitlement{}
	}
	if r.Progress == nil {
		r.Progress = []LessonProgress{}
	}
	r.Version = RecordVersion
	return nil
}

func (r *Record) entitlement(skuID string) (Entitlement, bool) {
	for _, e := range r.Entitlements {
		if e.SkuID == skuID {
			return e, true
		}
	}
	return Entitlement{}, false
}

func (r *Record) progressIndex(lessonID string) int {
	for i, p := range r.Progress {
		if p.LessonID == lessonID {
			return i
		}
	}
	return -1
}

// Repository - порт хранения. Load возвращает ошибку с видом
// shared.ErrNotFound, если записи ещё нет.
type Repository interface {
	Load(ctx context.Context, userID string) (*Record, error)
	Save(ctx context.Context, userID string, rec *Record) error
}

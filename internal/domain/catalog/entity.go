// Package catalog содержит неизменяемые справочные данные ZapTalk:
// уровни CEFR, модули, уроки и продаваемые SKU.
//
// Каталог загружается один раз при старте и дальше только читается,
// поэтому *Catalog безопасен для конкурентного использования.
package catalog

import "fmt"

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// LevelCode - код уровня CEFR.
type LevelCode string

const (
	LevelA1 LevelCode = "A1"
	LevelA2 LevelCode = "A2"
	LevelB1 LevelCode = "B1"
	LevelB2 LevelCode = "B2"
	LevelC1 LevelCode = "C1"
	LevelC2 LevelCode = "C2"
)

// LevelCodes - все уровни в порядке возрастания.
var LevelCodes = []LevelCode{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}

// IsValid проверяет, что код входит в шкалу CEFR.
func (c LevelCode) IsValid() bool {
	for _, code := range LevelCodes {
		if code == c {
			return true
		}
	}
	return false
}

// LessonKind - тип урока.
type LessonKind string

const (
	KindGrammar   LessonKind = "grammar"
	KindReading   LessonKind = "reading"
	KindListening LessonKind = "listening"
	KindSpeaking  LessonKind = "speaking"
	KindVocab     LessonKind = "vocab"
	KindStory     LessonKind = "story"
)

// SkuType - гранулярность покупки.
type SkuType string

const (
	SkuLesson SkuType = "lesson"
	SkuModule SkuType = "module"
	SkuLevel  SkuType = "level"
)

// IsValid проверяет тип SKU.
func (t SkuType) IsValid() bool {
	return t == SkuLesson || t == SkuModule || t == SkuLevel
}

// SKUID возвращает единственный допустимый идентификатор SKU для пары
// (тип, ссылка): sku-lesson-A1-L02, sku-module-A1-M01, sku-level-A1.
func SKUID(t SkuType, refID string) string {
	return fmt.Sprintf("sku-%s-%s", t, refID)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Level - уровень CEFR, контейнер модулей.
type Level struct {
	Code        LevelCode `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	ModuleIDs   []string  `json:"moduleIds"`
}

// Module - модуль, контейнер уроков.
type Module struct {
	ID          string    `json:"id"`
	Level       LevelCode `json:"level"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	LessonIDs   []string  `json:"lessonIds"`
}

// Lesson - урок. Цена в сатоши, длительность в минутах.
type Lesson struct {
	ID          string     `json:"id"`
	Level       LevelCode  `json:"level"`
	ModuleID    string     `json:"moduleId"`
	Title       string     `json:"title"`
	Kind        LessonKind `json:"kind"`
	IsFree      bool       `json:"isFree"`
	PriceSats   int        `json:"priceSats"`
	DurationMin int        `json:"durationMin"`
	Description string     `json:"description,omitempty"`
	Objectives  []string   `json:"objectives,omitempty"`
}

// SKU - продаваемая единица. Цена SKU определяет сумму платежа.
type SKU struct {
	ID          string  `json:"id"`
	Type        SkuType `json:"type"`
	RefID       string  `json:"refId"`
	PriceSats   int     `json:"priceSats"`
	DisplayName string  `json:"displayName"`
	Description string  `json:"description,omitempty"`
}

// Purchasable - SKU можно купить только за положительную сумму.
func (s SKU) Purchasable() bool {
	return s.PriceSats > 0
}

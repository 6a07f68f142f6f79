package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Data - сырые данные каталога в том виде, в каком их поставляет
// контент-команда (JSON-файл или встроенный набор).
type Data struct {
	Levels  []Level  `json:"levels"`
	Modules []Module `json:"modules"`
	Lessons []Lesson `json:"lessons"`
	SKUs    []SKU    `json:"skus"`
}

// Catalog - проиндексированный каталог только для чтения.
type Catalog struct {
	levels  []Level
	modules []Module
	lessons []Lesson
	skus    []SKU

	levelByCode map[LevelCode]int
	moduleByID  map[string]int
	lessonByID  map[string]int
	skuByID     map[string]int
}

// New строит индекс и проверяет ссылочную целостность данных.
func New(d Data) (*Catalog, error) {
	c := &Catalog{
		levels:      append([]Level(nil), d.Levels...),
		modules:     append([]Module(nil), d.Modules...),
		lessons:     append([]Lesson(nil), d.Lessons...),
		skus:        append([]SKU(nil), d.SKUs...),
		levelByCode: make(map[LevelCode]int, len(d.Levels)),
		moduleByID:  make(map[string]int, len(d.Modules)),
		lessonByID:  make(map[string]int, len(d.Lessons)),
		skuByID:     make(map[string]int, len(d.SKUs)),
	}

	var errs []error
	for i, l := range c.levels {
		if !l.Code.IsValid() {
			errs = append(errs, fmt.Errorf("level %q: unknown CEFR code", l.Code))
		}
		if _, dup := c.levelByCode[l.Code]; dup {
			errs = append(errs, fmt.Errorf("level %q: duplicate", l.Code))
		}
		c.levelByCode[l.Code] = i
	}
	for i, m := range c.modules {
		if _, dup := c.moduleByID[m.ID]; dup {
			errs = append(errs, fmt.Errorf("module %q: duplicate", m.ID))
		}
		if _, ok := c.levelByCode[m.Level]; !ok {
			errs = append(errs, fmt.Errorf("module %q: unknown level %q", m.ID, m.Level))
		}
		c.moduleByID[m.ID] = i
	}
	for i, l := range c.lessons {
		if l.ID == "" {
			errs = append(errs, errors.New("lesson with empty id"))
		}
		if _, dup := c.lessonByID[l.ID]; dup {
			errs = append(errs, fmt.Errorf("lesson %q: duplicate", l.ID))
		}
		if _, ok := c.moduleByID[l.ModuleID]; !ok {
			errs = append(errs, fmt.Errorf("lesson %q: unknown module %q", l.ID, l.ModuleID))
		}
		if _, ok := c.levelByCode[l.Level]; !ok {
			errs = append(errs, fmt.Errorf("lesson %q: unknown level %q", l.ID, l.Level))
		}
		if l.PriceSats < 0 || l.DurationMin < 0 {
			errs = append(errs, fmt.Errorf("lesson %q: negative price or duration", l.ID))
		}
		c.lessonByID[l.ID] = i
	}
	for i, s := range c.skus {
		if !s.Type.IsValid() {
			errs = append(errs, fmt.Errorf("sku %q: unknown type %q", s.ID, s.Type))
		}
		if want := SKUID(s.Type, s.RefID); s.ID != want {
			errs = append(errs, fmt.Errorf("sku %q: id must be %q", s.ID, want))
		}
		if _, dup := c.skuByID[s.ID]; dup {
			errs = append(errs, fmt.Errorf("sku %q: duplicate", s.ID))
		}
		if !c.refExists(s.Type, s.RefID) {
			errs = append(errs, fmt.Errorf("sku %q: unknown %s %q", s.ID, s.Type, s.RefID))
		}
		if s.PriceSats < 0 {
			errs = append(errs, fmt.Errorf("sku %q: negative price", s.ID))
		}
		c.skuByID[s.ID] = i
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid catalog: %w", errors.Join(errs...))
	}
	return c, nil
}

// LoadJSON читает каталог из JSON-документа формата Data.
func LoadJSON(r io.Reader) (*Catalog, error) {
	var d Data
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(d)
}

func (c *Catalog) refExists(t SkuType, ref string) bool {
	var ok bool
	switch t {
	case SkuLesson:
		_, ok = c.lessonByID[ref]
	case SkuModule:
		_, ok = c.moduleByID[ref]
	case SkuLevel:
		_, ok = c.levelByCode[LevelCode(ref)]
	}
	return ok
}

// Levels возвращает уровни в порядке каталога.
func (c *Catalog) Levels() []Level { return append([]Level(nil), c.levels...) }

// Lessons возвращает все уроки в порядке каталога.
func (c *Catalog) Lessons() []Lesson { return append([]Lesson(nil), c.lessons...) }

// SKUs возвращает все SKU.
func (c *Catalog) SKUs() []SKU { return append([]SKU(nil), c.skus...) }

func (c *Catalog) LevelByCode(code LevelCode) (Level, bool) {
	i, ok := c.levelByCode[code]
	if !ok {
		return Level{}, false
	}
	return c.levels[i], true
}

func (c *Catalog) ModuleByID(id string) (Module, bool) {
	i, ok := c.moduleByID[id]
	if !ok {
		return Module{}, false
	}
	return c.modules[i], true
}

func (c *Catalog) LessonByID(id string) (Lesson, bool) {
	i, ok := c.lessonByID[id]
	if !ok {
		return Lesson{}, false
	}
	return c.lessons[i], true
}

func (c *Catalog) SKUByID(id string) (SKU, bool) {
	i, ok := c.skuByID[id]
	if !ok {
		return SKU{}, false
	}
	return c.skus[i], true
}

// SKUFor находит SKU по типу и ссылке.
func (c *Catalog) SKUFor(t SkuType, refID string) (SKU, bool) {
	return c.SKUByID(SKUID(t, refID))
}

// ModulesByLevel возвращает модули уровня в порядке каталога.
func (c *Catalog) ModulesByLevel(code LevelCode) []Module {
	var out []Module
	for _, m := range c.modules {
		if m.Level == code {
			out = append(out, m)
		}
	}
	return out
}

// LessonsByModule возвращает уроки модуля в порядке каталога.
func (c *Catalog) LessonsByModule(moduleID string) []Lesson {
	var out []Lesson
	for _, l := range c.lessons {
		if l.ModuleID == moduleID {
			out = append(out, l)
		}
	}
	return out
}

// LessonsByLevel возвращает уроки уровня в порядке каталога.
func (c *Catalog) LessonsByLevel(code LevelCode) []Lesson {
	var out []Lesson
	for _, l := range c.lessons {
		if l.Level == code {
			out = append(out, l)
		}
	}
	return out
}

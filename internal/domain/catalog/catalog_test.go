package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Lookups(t *testing.T) {
	c := Default()

	lesson, ok := c.LessonByID("A1-L02")
	require.True(t, ok)
	assert.Equal(t, "A1-M01", lesson.ModuleID)
	assert.Equal(t, 2000, lesson.PriceSats)
	assert.False(t, lesson.IsFree)

	free, _ := c.LessonByID("A1-L01")
	assert.True(t, free.IsFree)

	_, ok = c.LessonByID("Z9-L99")
	assert.False(t, ok)

	assert.Len(t, c.Levels(), 6)
	assert.Len(t, c.LessonsByModule("A1-M01"), 3)
	assert.Len(t, c.ModulesByLevel(LevelA1), 1)
	assert.Empty(t, c.ModulesByLevel(LevelB2))
	assert.Len(t, c.LessonsByLevel(LevelA1), 3)
}

func TestSKUID(t *testing.T) {
	assert.Equal(t, "sku-lesson-A1-L01", SKUID(SkuLesson, "A1-L01"))
	assert.Equal(t, "sku-module-A1-M01", SKUID(SkuModule, "A1-M01"))
	assert.Equal(t, "sku-level-A1", SKUID(SkuLevel, "A1"))

	sku, ok := Default().SKUFor(SkuModule, "A1-M01")
	require.True(t, ok)
	assert.Equal(t, 3500, sku.PriceSats)
	assert.True(t, sku.Purchasable())

	freeSKU, _ := Default().SKUByID("sku-lesson-A1-L01")
	assert.False(t, freeSKU.Purchasable())
}

func TestNew_RejectsBrokenReferences(t *testing.T) {
	d := DefaultData()
	d.Lessons = append(d.Lessons, Lesson{ID: "A1-L99", Level: LevelA1, ModuleID: "A1-M77"})
	d.SKUs = append(d.SKUs, SKU{ID: "lesson-A1-L02", Type: SkuLesson, RefID: "A1-L02"})

	_, err := New(d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown module "A1-M77"`)
	assert.Contains(t, err.Error(), `id must be "sku-lesson-A1-L02"`)
}

func TestLoadJSON(t *testing.T) {
	doc := `{
  "levels": [{"code": "B1", "title": "Intermediate B1", "moduleIds": ["B1-M01"]}],
  "modules": [{"id": "B1-M01", "level": "B1", "title": "Travel", "lessonIds": ["B1-L01"]}],
  "lessons": [{"id": "B1-L01", "level": "B1", "moduleId": "B1-M01", "title": "At the Airport",
               "kind": "listening", "isFree": false, "priceSats": 1500, "durationMin": 12}],
  "skus": [{"id": "sku-lesson-B1-L01", "type": "lesson", "refId": "B1-L01", "priceSats": 1500,
            "displayName": "At the Airport"}]
}`
	c, err := LoadJSON(strings.NewReader(doc))
	require.NoError(t, err)

	lesson, ok := c.LessonByID("B1-L01")
	require.True(t, ok)
	assert.Equal(t, KindListening, lesson.Kind)
	assert.Equal(t, 12, lesson.DurationMin)
}

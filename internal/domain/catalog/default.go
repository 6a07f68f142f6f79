package catalog

// DefaultData - встроенный стартовый каталог: уровень A1 с модулем
// Essentials из трёх уроков, остальные уровни пока пустые.
func DefaultData() Data {
	return Data{
		Levels: []Level{
			{Code: LevelA1, Title: "Beginner A1", Description: "Start your English journey with the basics", ModuleIDs: []string{"A1-M01"}},
			{Code: LevelA2, Title: "Elementary A2", Description: "Build on your foundation", ModuleIDs: []string{}},
			{Code: LevelB1, Title: "Intermediate B1", Description: "Develop confidence in everyday situations", ModuleIDs: []string{}},
			{Code: LevelB2, Title: "Upper Intermediate B2", Description: "Express yourself fluently and spontaneously", ModuleIDs: []string{}},
			{Code: LevelC1, Title: "Advanced C1", Description: "Master complex language use", ModuleIDs: []string{}},
			{Code: LevelC2, Title: "Proficiency C2", Description: "Achieve native-like fluency", ModuleIDs: []string{}},
		},
		Modules: []Module{
			{
				ID:          "A1-M01",
				Level:       LevelA1,
				Title:       "Essentials",
				Description: "Master the fundamental building blocks of English",
				LessonIDs:   []string{"A1-L01", "A1-L02", "A1-L03"},
			},
		},
		Lessons: []Lesson{
			{
				ID: "A1-L01", Level: LevelA1, ModuleID: "A1-M01",
				Title: "Alphabet & Sounds", Kind: KindVocab,
				IsFree: true, PriceSats: 0, DurationMin: 5,
				Description: "Learn the English alphabet and basic pronunciation",
				Objectives: []string{
					"Recognize all 26 letters",
					"Pronounce basic sounds correctly",
					"Understand vowel vs consonant distinction",
				},
			},
			{
				ID: "A1-L02", Level: LevelA1, ModuleID: "A1-M01",
				Title: "Basic Greetings", Kind: KindSpeaking,
				PriceSats: 2000, DurationMin: 5,
				Description: "Master essential greetings and introductions",
				Objectives: []string{
					"Greet people in different contexts",
					"Introduce yourself confidently",
					"Ask basic questions about names",
				},
			},
			{
				ID: "A1-L03", Level: LevelA1, ModuleID: "A1-M01",
				Title: "Numbers & Time", Kind: KindVocab,
				PriceSats: 2000, DurationMin: 5,
				Description: "Learn to count and tell time in English",
				Objectives: []string{
					"Count from 0 to 100",
					"Tell time accurately",
					"Use numbers in daily situations",
				},
			},
		},
		SKUs: []SKU{
			{ID: "sku-lesson-A1-L01", Type: SkuLesson, RefID: "A1-L01", PriceSats: 0, DisplayName: "Alphabet & Sounds", Description: "Free preview lesson"},
			{ID: "sku-lesson-A1-L02", Type: SkuLesson, RefID: "A1-L02", PriceSats: 2000, DisplayName: "Basic Greetings", Description: "Master essential greetings"},
			{ID: "sku-lesson-A1-L03", Type: SkuLesson, RefID: "A1-L03", PriceSats: 2000, DisplayName: "Numbers & Time", Description: "Learn numbers and telling time"},
			{ID: "sku-module-A1-M01", Type: SkuModule, RefID: "A1-M01", PriceSats: 3500, DisplayName: "Essentials Module", Description: "Save 500 sats with the bundle!"},
			{ID: "sku-level-A1", Type: SkuLevel, RefID: "A1", PriceSats: 20000, DisplayName: "Complete A1 Level", Description: "Full beginner course access"},
		},
	}
}

// Default возвращает проиндексированный встроенный каталог.
func Default() *Catalog {
	c, err := New(DefaultData())
	if err != nil {
		panic(err)
	}
	return c
}

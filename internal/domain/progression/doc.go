// Package progression содержит доменную модель геймификации ZapTalk.
//
// Пакет определяет:
//
//   - Кривую уровней: XPRequiredForLevel, TotalXPForLevel, LevelFromXP, LevelTitle
//   - Каталог достижений: AchievementDefinition, AchievementCatalog
//   - Сохраняемое состояние: Record (версия RecordVersion) и порт Repository
//   - Engine: операции AddXP, StartSession, EndSession, UpdateStreak,
//     SetDailyGoal, UpdateDailyProgress, CheckAchievements, ResetProgress
//   - ComputeStats: чистый расчёт статистики
//
// # Поток завершения урока
//
//	engine.StartSession(ctx, "A1-L01")
//	// ... через 90 секунд
//	engine.EndSession(ctx, true, shared.IntPtr(100))
//	// +50 за урок, +25 за идеальный квиз, +20 за скорость = 95 XP
//
// Все календарные расчёты (сегодня, вчера) выполняются в часовом поясе
// timeutil.Calendar, переданного через WithCalendar.
package progression

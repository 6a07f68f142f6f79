package progression

import "context"

// Repository определяет порт хранения состояния прогресса.
// Реализуется в infrastructure (sqlite, postgres, redis, memory).
type Repository interface {
	// Load возвращает сохранённую запись пользователя.
	// Если записи нет, возвращает ошибку вида shared.ErrNotFound.
	Load(ctx context.Context, userID string) (*Record, error)

	// Save целиком перезаписывает запись пользователя. Возврат nil означает,
	// что хранилище подтвердило запись.
	Save(ctx context.Context, userID string, rec *Record) error
}

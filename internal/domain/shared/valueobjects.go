package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Идентификаторы
// ═══════════════════════════════════════════════════════════════════════════

// UserID - идентификатор учащегося. На практике это hex-ключ Nostr (npub в
// hex) или любой другой непрозрачный ключ без пробелов.
type UserID string

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

func (u UserID) String() string { return string(u) }

func (u UserID) IsValid() bool { return userIDPattern.MatchString(string(u)) }

// NewUserID валидирует и нормализует идентификатор.
func NewUserID(raw string) (UserID, error) {
	id := UserID(strings.TrimSpace(raw))
	if !id.IsValid() {
		return "", NewDomainError("account", "Validate", ErrInvalidID, "invalid user id")
	}
	return id, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Оценки
// ═══════════════════════════════════════════════════════════════════════════

// MaxScore - максимальный балл за квиз.
const MaxScore = 100

// ClampScore приводит балл к диапазону [0, MaxScore].
func ClampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > MaxScore:
		return MaxScore
	default:
		return score
	}
}

// ClampScorePtr делает то же для необязательного балла.
func ClampScorePtr(score *int) *int {
	if score == nil {
		return nil
	}
	v := ClampScore(*score)
	return &v
}

// IntPtr возвращает указатель на копию v.
func IntPtr(v int) *int { return &v }

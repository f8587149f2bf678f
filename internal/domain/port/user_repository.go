package port

import (
	"context"

	"plate-mask/internal/domain/entity"
)

// UserRepository интерфейс хранилища пользователей бота
type UserRepository interface {
	// Get возвращает пользователя по ID, создаёт нового если не найден
	Get(ctx context.Context, userID, chatID int64) (*entity.User, error)

	// UpdateState атомарно читает пользователя, применяет update и сохраняет результат.
	// Если update вернул ошибку, состояние не меняется.
	UpdateState(ctx context.Context, userID, chatID int64, update func(user *entity.User) error) (*entity.User, error)
}

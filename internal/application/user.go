package app

import (
	"context"
	"errors"

	"plate-mask/internal/domain/entity"
	"plate-mask/internal/domain/port"
)

var (
	// ErrUserBusy фото пользователя ещё обрабатывается
	ErrUserBusy = errors.New("previous photo is still being processed")
	// ErrPhotoNotExpected пользователь не запросил маскирование
	ErrPhotoNotExpected = errors.New("photo is not expected in the current state")
)

// UserService ведёт состояние диалога пользователя с ботом.
// Из состояния обработки выводит только FinishProcessing.
type UserService struct {
	repo port.UserRepository
}

func NewUserService(repo port.UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) Get(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.repo.Get(ctx, userID, chatID)
}

// BeginMasking переводит пользователя в ожидание фото
func (s *UserService) BeginMasking(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.transition(ctx, userID, chatID, entity.StateAwaitingPhoto)
}

// Cancel возвращает пользователя в главное меню
func (s *UserService) Cancel(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.transition(ctx, userID, chatID, entity.StateMainMenu)
}

// StartProcessing занимает пользователя на время обработки.
// Фото принимается только в ожидании фото; проверка и запись атомарны.
func (s *UserService) StartProcessing(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.repo.UpdateState(ctx, userID, chatID, func(u *entity.User) error {
		switch {
		case u.Busy():
			return ErrUserBusy
		case u.State != entity.StateAwaitingPhoto:
			return ErrPhotoNotExpected
		}
		u.SetState(entity.StateProcessing)
		return nil
	})
}

// FinishProcessing снимает занятость; пользователь снова может прислать фото
func (s *UserService) FinishProcessing(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.repo.UpdateState(ctx, userID, chatID, func(u *entity.User) error {
		u.SetState(entity.StateAwaitingPhoto)
		return nil
	})
}

func (s *UserService) transition(ctx context.Context, userID, chatID int64, state entity.UserState) (*entity.User, error) {
	return s.repo.UpdateState(ctx, userID, chatID, func(u *entity.User) error {
		if u.Busy() {
			return ErrUserBusy
		}
		u.SetState(state)
		return nil
	})
}

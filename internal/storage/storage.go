package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pribylovaa/go-advanced-auth/internal/models"
)

var (
	// ErrNotFound — пользователь не найден (в том числе по коду: неверный или просроченный).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности e-mail.
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над учётными записями.
// Отсутствие записи всегда сообщается через ErrNotFound; вызывающая сторона
// сама переводит его в доменную ошибку.
type UserStorage interface {
	// SaveUser создаёт пользователя и проставляет ему ID.
	// При занятом e-mail возвращает ErrAlreadyExists.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по e-mail.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id string) (*models.User, error)
	// TouchLastLogin обновляет момент последнего входа.
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// CodeEffect — изменения записи, которые применяются в той же операции,
// что и погашение кода.
type CodeEffect struct {
	// MarkVerified выставляет признак подтверждённого e-mail.
	MarkVerified bool
	// PasswordHash заменяет хэш пароля, если не пуст.
	PasswordHash string
}

// CodeStorage хранит одноразовые коды, встроенные в запись пользователя.
type CodeStorage interface {
	// SetCode перезаписывает код указанного назначения.
	SetCode(ctx context.Context, id string, purpose models.CodePurpose, code models.OneTimeCode) error
	// ConsumeCode атомарно находит пользователя, у которого код совпадает со значением
	// и ещё не истёк к моменту now, стирает код, применяет effect и возвращает
	// обновлённого пользователя. Ошибка означает, что не изменилось ничего.
	// Неверный и просроченный код неразличимы: в обоих случаях ErrNotFound.
	ConsumeCode(ctx context.Context, purpose models.CodePurpose, value string, now time.Time, effect CodeEffect) (*models.User, error)
	// ClearExpiredCodes стирает все коды, истёкшие к моменту now.
	ClearExpiredCodes(ctx context.Context, now time.Time) error
}

// Storage задаёт контракт хранилища учётных данных.
type Storage interface {
	UserStorage
	CodeStorage
	Close()
}

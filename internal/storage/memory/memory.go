// memory реализует storage.Storage в памяти процесса.
// Используется драйвером "memory" для локального запуска и в сквозных тестах.
// Уникальность e-mail обеспечивается под мьютексом, поэтому гонка
// "проверить-затем-вставить" здесь закрыта так же, как уникальным индексом в Mongo.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/pribylovaa/go-advanced-auth/internal/models"
	"github.com/pribylovaa/go-advanced-auth/internal/storage"
)

// Storage — потокобезопасное хранилище пользователей в map.
type Storage struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

// SaveUser создаёт пользователя. ID генерируется в формате ObjectID (24 hex-символа).
func (s *Storage) SaveUser(_ context.Context, user *models.User) error {
	const op = "storage.memory.SaveUser"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	id, err := newID()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	user.ID = id
	cp := *user
	s.byID[id] = &cp
	s.byEmail[user.Email] = id

	return nil
}

// UserByEmail находит пользователя по e-mail.
func (s *Storage) UserByEmail(_ context.Context, email string) (*models.User, error) {
	const op = "storage.memory.UserByEmail"

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	cp := *s.byID[id]
	return &cp, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(_ context.Context, id string) (*models.User, error) {
	const op = "storage.memory.UserByID"

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	cp := *u
	return &cp, nil
}

// TouchLastLogin обновляет момент последнего входа.
func (s *Storage) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return s.update("storage.memory.TouchLastLogin", id, func(u *models.User) {
		u.LastLogin = at.UTC()
	})
}

// SetCode перезаписывает код указанного назначения.
func (s *Storage) SetCode(_ context.Context, id string, purpose models.CodePurpose, code models.OneTimeCode) error {
	return s.update("storage.memory.SetCode", id, func(u *models.User) {
		u.SetCode(purpose, code)
	})
}

// ConsumeCode атомарно гасит код (см. storage.CodeStorage).
func (s *Storage) ConsumeCode(_ context.Context, purpose models.CodePurpose, value string, now time.Time, effect storage.CodeEffect) (*models.User, error) {
	const op = "storage.memory.ConsumeCode"

	if value == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.byID {
		code := u.Code(purpose)
		if code.Value != value || !code.ActiveAt(now) {
			continue
		}

		u.SetCode(purpose, models.OneTimeCode{})
		if effect.MarkVerified {
			u.IsVerified = true
		}
		if effect.PasswordHash != "" {
			u.PasswordHash = effect.PasswordHash
		}
		u.UpdatedAt = time.Now().UTC()

		cp := *u
		return &cp, nil
	}

	return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

// ClearExpiredCodes стирает истёкшие коды обоих назначений.
func (s *Storage) ClearExpiredCodes(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.byID {
		for _, p := range []models.CodePurpose{models.PurposeEmailVerification, models.PurposePasswordReset} {
			if c := u.Code(p); !c.Empty() && !c.ActiveAt(now) {
				u.SetCode(p, models.OneTimeCode{})
			}
		}
	}

	return nil
}

// Close — no-op: ресурсов нет.
func (s *Storage) Close() {}

func (s *Storage) update(op, id string, fn func(u *models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	fn(u)
	u.UpdatedAt = time.Now().UTC()

	return nil
}

func newID() (string, error) {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}

	return hex.EncodeToString(b[:]), nil
}

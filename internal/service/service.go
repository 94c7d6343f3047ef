// service содержит бизнес-логику auth-сервиса:
// регистрацию/вход/выход, выпуск и проверку токенов, ротацию refresh-токена
// через реестр отзыва и одноразовые коды (подтверждение e-mail, сброс пароля).
//
// Основные аспекты:
//   - Service не хранит состояние запроса; экземпляр безопасен для конкурентного
//     использования, если хранилище и реестр потокобезопасны.
//   - Недоступность хранилища или реестра — жёсткая ошибка операции.
//   - Ошибки возвращаются обёрнутыми и далее маппятся транспортом на HTTP-статусы
//     (см. комментарии к переменным ошибок ниже).
package service

import (
	"errors"
	"time"

	"github.com/pribylovaa/go-advanced-auth/internal/cache"
	"github.com/pribylovaa/go-advanced-auth/internal/captcha"
	"github.com/pribylovaa/go-advanced-auth/internal/config"
	"github.com/pribylovaa/go-advanced-auth/internal/mailer"
	"github.com/pribylovaa/go-advanced-auth/internal/storage"
)

var (
	// ErrValidation — не заполнены обязательные поля. HTTP 400.
	ErrValidation = errors.New("all fields are required")

	// ErrPasswordTooLong — пароль длиннее maxPasswordBytes (предел bcrypt). HTTP 400.
	ErrPasswordTooLong = errors.New("password is too long")

	// ErrInvalidEmail — e-mail имеет некорректный формат. HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrEmailTaken — e-mail уже занят. HTTP 400.
	ErrEmailTaken = errors.New("user already exists")

	// ErrInvalidCredentials — нет такого пользователя или пароль неверен
	// (причины намеренно неразличимы). HTTP 400.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidOrExpiredCode — код неверен, истёк или уже погашен
	// (причины намеренно неразличимы). HTTP 400.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")

	// ErrInvalidToken — токен отсутствует, подпись или срок не прошли проверку. HTTP 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenRevoked — refresh-токен валиден криптографически, но не совпадает
	// с записью реестра (отозван/заменён). HTTP 403.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrUserNotFound — пользователь не найден. HTTP 404 или 400 в зависимости от маршрута.
	ErrUserNotFound = errors.New("user not found")

	// ErrAlreadyVerified — e-mail уже подтверждён. HTTP 400.
	ErrAlreadyVerified = errors.New("email already verified")

	// ErrCaptchaFailed — проверка «не робот» не пройдена. HTTP 400.
	ErrCaptchaFailed = errors.New("verify you are not a robot")
)

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	storage  storage.Storage
	registry cache.RefreshRegistry
	cfg      config.AuthConfig

	mailer  mailer.Sender    // nil — письма не отправляются
	captcha captcha.Verifier // nil — проверка отключена
	now     func() time.Time
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, registry cache.RefreshRegistry, cfg config.AuthConfig) *Service {
	return &Service{
		storage:  storage,
		registry: registry,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetMailer устанавливает отправителя писем (опционально).
func (s *Service) SetMailer(m mailer.Sender) {
	s.mailer = m
}

// SetCaptcha включает проверку «не робот» перед входом (опционально).
func (s *Service) SetCaptcha(v captcha.Verifier) {
	s.captcha = v
}

// SetClock подменяет источник времени (тесты).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) nowUTC() time.Time {
	return s.now().UTC()
}

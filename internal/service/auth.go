package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/go-advanced-auth/internal/cache"
	"github.com/pribylovaa/go-advanced-auth/internal/captcha"
	"github.com/pribylovaa/go-advanced-auth/internal/mailer"
	"github.com/pribylovaa/go-advanced-auth/internal/models"
	"github.com/pribylovaa/go-advanced-auth/internal/pkg/log"
	"github.com/pribylovaa/go-advanced-auth/internal/pkg/redact"
	"github.com/pribylovaa/go-advanced-auth/internal/storage"
)

// LoginInput — данные формы входа.
type LoginInput struct {
	Email        string
	Password     string
	CaptchaToken string
	RemoteIP     string
}

// Signup регистрирует пользователя, выдаёт ему сессию и отправляет код подтверждения.
func (s *Service) Signup(ctx context.Context, email, password, name string) (*models.User, *models.TokenPair, error) {
	const op = "service.auth.Signup"

	lg := log.From(ctx)

	name = strings.TrimSpace(name)
	if strings.TrimSpace(email) == "" || password == "" || name == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrValidation)
	}

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(password) > maxPasswordBytes {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrPasswordTooLong)
	}

	_, err = s.storage.UserByEmail(ctx, normEmail)
	if err == nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	code, err := s.newCode(models.PurposeEmailVerification)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.nowUTC()
	user := &models.User{
		Email:        normEmail,
		Name:         name,
		PasswordHash: hash,
		Verification: code,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("user_signed_up",
		slog.String("user_id", user.ID),
		slog.String("email", redact.Email(normEmail)),
	)

	s.notify(ctx, mailer.KindVerification, user.Email, map[string]string{mailer.ParamCode: code.Value})

	return user, pair, nil
}

// Login проверяет учётные данные (и капчу, если она включена) и выдаёт новую сессию.
// Предыдущий refresh-токен пользователя вытесняется из реестра.
func (s *Service) Login(ctx context.Context, in LoginInput) (*models.User, *models.TokenPair, error) {
	const op = "service.auth.Login"

	if s.captcha != nil {
		if err := s.captcha.Verify(ctx, in.CaptchaToken, in.RemoteIP); err != nil {
			if errors.Is(err, captcha.ErrRejected) {
				return nil, nil, fmt.Errorf("%s: %w", op, ErrCaptchaFailed)
			}

			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	normEmail, err := validateEmail(in.Email)
	if err != nil || in.Password == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, in.Password) {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.nowUTC()
	if err := s.storage.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	user.LastLogin = now

	return user, pair, nil
}

// Logout отзывает refresh-токен, если он валиден. Невалидный или пустой токен
// игнорируется: выход всегда успешен, кроме недоступности реестра.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	const op = "service.auth.Logout"

	if refreshToken == "" {
		return nil
	}

	uid, err := s.VerifyRefresh(refreshToken)
	if err != nil {
		log.From(ctx).Debug("logout_token_ignored", slog.String("op", op))
		return nil
	}

	if err := s.registry.Revoke(ctx, uid); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ValidateRefreshToken проверяет refresh-токен: подпись, срок и совпадение
// с текущей записью реестра. Возвращает ID пользователя.
//   - подпись/срок не прошли — ErrInvalidToken;
//   - записи нет или в ней другой токен — ErrTokenRevoked.
func (s *Service) ValidateRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	const op = "service.auth.ValidateRefreshToken"

	uid, err := s.VerifyRefresh(refreshToken)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	stored, ok, err := s.registry.Lookup(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if !ok || stored != cache.Digest(refreshToken) {
		log.From(ctx).Warn("refresh_token_mismatch",
			slog.String("op", op),
			slog.String("user_id", uid),
			slog.Bool("present", ok),
		)
		return "", fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	return uid, nil
}

// Refresh обменивает действующий refresh-токен на новую пару.
// Ротация атомарна: из двух параллельных обновлений одним токеном
// успешно лишь одно, второе получает ErrTokenRevoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, string, error) {
	const op = "service.auth.Refresh"

	if refreshToken == "" {
		return nil, "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := s.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.Issue(ctx, uid)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	rotated, err := s.registry.Rotate(ctx, uid, refreshToken, pair.RefreshToken)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	if !rotated {
		log.From(ctx).Warn("refresh_rotation_lost",
			slog.String("op", op),
			slog.String("user_id", uid),
		)
		return nil, "", fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	return pair, uid, nil
}

// CheckAuth возвращает пользователя, установленного Session-middleware.
func (s *Service) CheckAuth(ctx context.Context, userID string) (*models.User, error) {
	const op = "service.auth.CheckAuth"

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// startSession выпускает пару и делает её refresh-токен единственным действующим.
func (s *Service) startSession(ctx context.Context, userID string) (*models.TokenPair, error) {
	const op = "service.auth.startSession"

	pair, err := s.Issue(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.registry.Store(ctx, userID, pair.RefreshToken); err != nil {
		log.From(ctx).Error("refresh_store_failed",
			slog.String("op", op),
			slog.String("user_id", userID),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, nil
}

// maxPasswordBytes — bcrypt не принимает пароли длиннее 72 байт.
const maxPasswordBytes = 72

// hashPassword хэширует пароль bcrypt с настроенной стоимостью.
func (s *Service) hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("%s: %w", op, ErrPasswordTooLong)
	}

	cost := s.cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(b), nil
}

// checkPassword сравнивает пароль с хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validateEmail проверяет базовый формат email и приводит его к нижнему регистру.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/pribylovaa/go-advanced-auth/internal/mailer"
	"github.com/pribylovaa/go-advanced-auth/internal/models"
	"github.com/pribylovaa/go-advanced-auth/internal/pkg/log"
	"github.com/pribylovaa/go-advanced-auth/internal/pkg/redact"
	"github.com/pribylovaa/go-advanced-auth/internal/storage"
)

// Длина токена сброса пароля в байтах (в hex — вдвое больше).
const resetTokenBytes = 20

// newCode генерирует код назначения purpose со сроком now+TTL:
// подтверждение e-mail — шестизначное число, сброс пароля — случайный hex-токен.
func (s *Service) newCode(purpose models.CodePurpose) (models.OneTimeCode, error) {
	const op = "service.codes.newCode"

	var (
		value string
		err   error
		ttl   time.Duration
	)

	switch purpose {
	case models.PurposePasswordReset:
		value, err = randomHex(resetTokenBytes)
		ttl = s.cfg.ResetTokenTTL
	default:
		value, err = sixDigits()
		ttl = s.cfg.VerificationCodeTTL
	}
	if err != nil {
		return models.OneTimeCode{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.OneTimeCode{Value: value, ExpiresAt: s.nowUTC().Add(ttl)}, nil
}

// issueCode выдаёт пользователю код назначения purpose и сохраняет его.
// При reuse действующий код возвращается без перевыпуска.
func (s *Service) issueCode(ctx context.Context, user *models.User, purpose models.CodePurpose, reuse bool) (models.OneTimeCode, error) {
	const op = "service.codes.issueCode"

	if current := user.Code(purpose); reuse && current.ActiveAt(s.nowUTC()) {
		return current, nil
	}

	code, err := s.newCode(purpose)
	if err != nil {
		return models.OneTimeCode{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.SetCode(ctx, user.ID, purpose, code); err != nil {
		return models.OneTimeCode{}, fmt.Errorf("%s: %w", op, err)
	}
	user.SetCode(purpose, code)

	return code, nil
}

// consumeCode гасит код и в той же записи применяет effect.
// Неверный, истёкший и уже погашенный код сводятся к ErrInvalidOrExpiredCode.
func (s *Service) consumeCode(ctx context.Context, purpose models.CodePurpose, value string, effect storage.CodeEffect) (*models.User, error) {
	const op = "service.codes.consumeCode"

	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidOrExpiredCode)
	}

	user, err := s.storage.ConsumeCode(ctx, purpose, value, s.nowUTC(), effect)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidOrExpiredCode)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// VerifyEmail подтверждает e-mail по коду и отправляет приветственное письмо.
func (s *Service) VerifyEmail(ctx context.Context, code string) (*models.User, error) {
	const op = "service.codes.VerifyEmail"

	user, err := s.consumeCode(ctx, models.PurposeEmailVerification, code, storage.CodeEffect{MarkVerified: true})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("email_verified", slog.String("user_id", user.ID))

	s.notify(ctx, mailer.KindWelcome, user.Email, map[string]string{mailer.ParamName: user.Name})

	return user, nil
}

// ResendVerificationCode повторно отправляет код подтверждения.
// Действующий код переиспользуется, новый выпускается только если прежний истёк.
func (s *Service) ResendVerificationCode(ctx context.Context, email string) error {
	const op = "service.codes.ResendVerificationCode"

	user, err := s.userForCode(ctx, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if user.IsVerified {
		return fmt.Errorf("%s: %w", op, ErrAlreadyVerified)
	}

	code, err := s.issueCode(ctx, user, models.PurposeEmailVerification, true)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.notify(ctx, mailer.KindVerification, user.Email, map[string]string{mailer.ParamCode: code.Value})

	return nil
}

// ForgotPassword выпускает токен сброса и отправляет ссылку <client_url>/reset-password/<token>.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	const op = "service.codes.ForgotPassword"

	user, err := s.userForCode(ctx, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	code, err := s.issueCode(ctx, user, models.PurposePasswordReset, false)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	resetURL := strings.TrimRight(s.cfg.ClientURL, "/") + "/reset-password/" + code.Value

	s.notify(ctx, mailer.KindPasswordReset, user.Email, map[string]string{mailer.ParamResetURL: resetURL})

	return nil
}

// ResetPassword заменяет пароль по токену сброса.
// Пароль проверяется до погашения токена: некорректный запрос его не сжигает.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	const op = "service.codes.ResetPassword"

	if password == "" {
		return fmt.Errorf("%s: %w", op, ErrValidation)
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.consumeCode(ctx, models.PurposePasswordReset, token, storage.CodeEffect{PasswordHash: hash})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("password_reset", slog.String("user_id", user.ID))

	s.notify(ctx, mailer.KindResetSuccess, user.Email, nil)

	return nil
}

// ClearExpiredCodes стирает истёкшие коды (фоновая очистка).
func (s *Service) ClearExpiredCodes(ctx context.Context) error {
	const op = "service.codes.ClearExpiredCodes"

	if err := s.storage.ClearExpiredCodes(ctx, s.nowUTC()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Service) userForCode(ctx context.Context, email string) (*models.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, ErrValidation
	}

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, err
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}

		return nil, err
	}

	return user, nil
}

// notify отправляет письмо. Ошибка только логируется: изменение состояния
// уже зафиксировано и не откатывается.
func (s *Service) notify(ctx context.Context, kind mailer.Kind, to string, params map[string]string) {
	if s.mailer == nil {
		return
	}

	if err := s.mailer.Send(ctx, kind, to, params); err != nil {
		log.From(ctx).Error("mail_send_failed",
			slog.String("kind", string(kind)),
			slog.String("to", redact.Email(to)),
			slog.String("err", err.Error()),
		)
	}
}

func sixDigits() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(100000+n.Int64(), 10), nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

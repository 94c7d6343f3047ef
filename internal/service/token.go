package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/go-advanced-auth/internal/models"
	"github.com/pribylovaa/go-advanced-auth/internal/pkg/log"
)

// Допуск на рассинхрон часов при проверке exp/iat.
const clockLeeway = 5 * time.Second

// tokenClaims — единственная прикладная claim — userId; jti делает каждый
// выпущенный токен уникальным даже при выпуске в одну секунду.
type tokenClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Issue выпускает пару access+refresh для пользователя. Реестр не трогает.
func (s *Service) Issue(ctx context.Context, userID string) (*models.TokenPair, error) {
	const op = "service.token.Issue"

	now := s.nowUTC()

	access, accessExp, err := s.sign(userID, []byte(s.cfg.AccessSecret), s.cfg.AccessTokenTTL, now)
	if err != nil {
		log.From(ctx).Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: access: %w", op, err)
	}

	refresh, refreshExp, err := s.sign(userID, []byte(s.cfg.RefreshSecret), s.cfg.RefreshTokenTTL, now)
	if err != nil {
		log.From(ctx).Error("refresh_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: refresh: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess проверяет подпись и срок access-токена.
// Истёкший и поддельный токен неразличимы: ErrInvalidToken.
func (s *Service) VerifyAccess(token string) (string, error) {
	const op = "service.token.VerifyAccess"

	uid, err := s.parse(token, []byte(s.cfg.AccessSecret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return uid, nil
}

// VerifyRefresh проверяет подпись и срок refresh-токена (без реестра).
func (s *Service) VerifyRefresh(token string) (string, error) {
	const op = "service.token.VerifyRefresh"

	uid, err := s.parse(token, []byte(s.cfg.RefreshSecret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return uid, nil
}

func (s *Service) sign(userID string, secret []byte, ttl time.Duration, now time.Time) (string, time.Time, error) {
	exp := now.Add(ttl)

	claims := tokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, exp, nil
}

func (s *Service) parse(tokenStr string, secret []byte) (string, error) {
	if tokenStr == "" {
		return "", ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenStr, &tokenClaims{},
		func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}

	return claims.UserID, nil
}

package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/pribylovaa/go-advanced-auth/internal/metrics"
	"github.com/pribylovaa/go-advanced-auth/internal/models"
	"github.com/pribylovaa/go-advanced-auth/internal/service"
)

// AuthService — операции сервисного слоя, которые вызывают хендлеры.
type AuthService interface {
	Signup(ctx context.Context, email, password, name string) (*models.User, *models.TokenPair, error)
	Login(ctx context.Context, in service.LoginInput) (*models.User, *models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, string, error)
	CheckAuth(ctx context.Context, userID string) (*models.User, error)
	VerifyEmail(ctx context.Context, code string) (*models.User, error)
	ResendVerificationCode(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
}

// Handlers агрегирует зависимости HTTP-слоя.
type Handlers struct {
	svc     AuthService
	cookies Cookies
	metrics *metrics.Metrics
}

// New создаёт хендлеры. m может быть nil.
func New(svc AuthService, cookies Cookies, m *metrics.Metrics) *Handlers {
	return &Handlers{svc: svc, cookies: cookies, metrics: m}
}

// rejected — ожидаемые отказы; в метриках событий они учитываются
// отдельно от непредвиденных ошибок.
var rejected = []error{
	service.ErrValidation,
	service.ErrPasswordTooLong,
	service.ErrInvalidEmail,
	service.ErrEmailTaken,
	service.ErrInvalidCredentials,
	service.ErrInvalidOrExpiredCode,
	service.ErrInvalidToken,
	service.ErrTokenRevoked,
	service.ErrUserNotFound,
	service.ErrAlreadyVerified,
	service.ErrCaptchaFailed,
}

func (h *Handlers) observe(event string, err error) {
	h.metrics.ObserveEvent(event, err, rejected...)
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

// remoteIP — адрес клиента без порта (для проверки капчи).
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// errors стандартизирует ответы об ошибках HTTP-слоя auth-сервиса.
// На вход он принимает ошибку сервисного слоя, а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное сообщение без утечки деталей.
//
// Формат ответа совместим с клиентом: {"success": false, "message": "..."};
// для 401/403/5xx дополнительно заполняется поле "error".
//
// Источник истинности по маппингу: переменные ошибок пакета service.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/go-advanced-auth/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// MsgInternal — текст любой непредвиденной ошибки.
const MsgInternal = "internal server error"

// ErrorResponse — единый формат ошибки для фронта.
// RequestID прокидывается из X-Request-Id, если есть (для трассировки).
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTP конвертирует ошибку сервиса в HTTP-статус и тело ответа.
//
// Поведение:
//   - err == nil — программная ошибка вызова: 500, чтобы не послать
//     "200 OK" с телом ошибки;
//   - известные ошибки сервиса маппятся через baseFromService();
//   - отмена/дедлайн контекста — 499/504;
//   - прочее (хранилище, реестр, подпись) — 500 без деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return New(http.StatusInternalServerError, MsgInternal)
	}

	status, msg := baseFromService(err)
	return New(status, msg)
}

// New собирает ответ с заданным статусом и сообщением.
func New(status int, msg string) (int, ErrorResponse) {
	resp := ErrorResponse{Message: msg}
	if status == http.StatusUnauthorized || status == http.StatusForbidden || status >= http.StatusInternalServerError {
		resp.Error = msg
	}

	return status, resp
}

// WriteError — хелпер для HTTP-хендлеров и middleware.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)
	write(w, r, status, resp)
}

// Write пишет ошибку с явным статусом и сообщением (для маршрутов,
// где статус отличается от базового маппинга).
func Write(w http.ResponseWriter, r *http.Request, status int, msg string) {
	status, resp := New(status, msg)
	write(w, r, status, resp)
}

func write(w http.ResponseWriter, r *http.Request, status int, resp ErrorResponse) {
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// baseFromService — базовый маппинг ошибок сервиса:
//   - ErrValidation/ErrInvalidEmail/ErrEmailTaken/ErrAlreadyVerified/ErrCaptchaFailed -> 400
//   - ErrInvalidCredentials/ErrInvalidOrExpiredCode -> 400 (причина не раскрывается)
//   - ErrInvalidToken -> 401
//   - ErrTokenRevoked -> 403
//   - ErrUserNotFound -> 404
//   - context.Canceled -> 499, context.DeadlineExceeded -> 504
//   - прочее -> 500
func baseFromService(err error) (int, string) {
	switch {
	case stderrors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "All fields are required"
	case stderrors.Is(err, service.ErrPasswordTooLong):
		return http.StatusBadRequest, "Password must be at most 72 bytes"
	case stderrors.Is(err, service.ErrInvalidEmail):
		return http.StatusBadRequest, "Invalid email format"
	case stderrors.Is(err, service.ErrEmailTaken):
		return http.StatusBadRequest, "User already exists"
	case stderrors.Is(err, service.ErrInvalidCredentials):
		return http.StatusBadRequest, "Invalid credentials"
	case stderrors.Is(err, service.ErrInvalidOrExpiredCode):
		return http.StatusBadRequest, "Invalid or expired code"
	case stderrors.Is(err, service.ErrAlreadyVerified):
		return http.StatusBadRequest, "Email already verified"
	case stderrors.Is(err, service.ErrCaptchaFailed):
		return http.StatusBadRequest, "Verify you are not a robot"
	case stderrors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "Unauthorized - invalid token"
	case stderrors.Is(err, service.ErrTokenRevoked):
		return http.StatusForbidden, "Forbidden - invalid refresh token"
	case stderrors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case stderrors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled"
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline exceeded"
	default:
		return http.StatusInternalServerError, MsgInternal
	}
}

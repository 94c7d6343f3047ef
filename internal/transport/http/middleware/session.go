package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pribylovaa/go-advanced-auth/internal/pkg/log"
	apierrors "github.com/pribylovaa/go-advanced-auth/internal/transport/http/errors"
)

// AccessVerifier проверяет access-токен и возвращает ID пользователя.
type AccessVerifier interface {
	VerifyAccess(token string) (string, error)
}

type userIDKey struct{}

// Session пропускает запрос, только если cookie cookieName содержит
// действующий access-токен:
//   - cookie нет или она пустая — 401 "no token provided";
//   - подпись/срок не прошли — 401 "invalid token" (клиент пробует refresh);
//   - иначе ID пользователя кладётся в контекст (UserID), а логгер
//     дополняется user_id.
func Session(v AccessVerifier, cookieName string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(cookieName)
			if err != nil || c.Value == "" {
				apierrors.Write(w, r, http.StatusUnauthorized, "Unauthorized - no token provided")
				return
			}

			uid, err := v.VerifyAccess(c.Value)
			if err != nil {
				log.From(r.Context()).Debug("access_token_rejected", slog.String("err", err.Error()))
				apierrors.Write(w, r, http.StatusUnauthorized, "Unauthorized - invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey{}, uid)
			ctx = log.With(ctx, slog.String("user_id", uid))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID возвращает ID пользователя, установленный Session.
func UserID(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(userIDKey{}).(string)
	return uid, ok && uid != ""
}

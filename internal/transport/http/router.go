package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-advanced-auth/internal/metrics"
	"github.com/pribylovaa/go-advanced-auth/internal/transport/http/handlers"
	"github.com/pribylovaa/go-advanced-auth/internal/transport/http/middleware"
)

// Service — сервисный слой, который обслуживает роутер:
// операции хендлеров и проверка access-токена для Session.
type Service interface {
	handlers.AuthService
	middleware.AccessVerifier
}

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api/auth"; если пустой — роуты регистрируются на корне.
	Cookies  handlers.Cookies
	Metrics  *metrics.Metrics // nil — метрики не собираются
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc Service, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
		middleware.Metrics(opts.Metrics),
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	h := handlers.New(svc, opts.Cookies, opts.Metrics)
	session := middleware.Session(svc, handlers.AccessCookie)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, session)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, session)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, session middleware.Middleware) {
	// сессия
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Post("/refresh-token", h.RefreshToken)
	r.With(session).Get("/check-auth", h.CheckAuth)

	// одноразовые коды
	r.Post("/verify-email", h.VerifyEmail)
	r.Post("/resend-verification-code", h.ResendVerificationCode)
	r.Post("/forgot-password", h.ForgotPassword)
	r.Post("/reset-password/{token}", h.ResetPassword)
}

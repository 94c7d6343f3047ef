package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-advanced-auth/internal/metrics"
	"github.com/pribylovaa/go-advanced-auth/internal/pkg/log"
	"github.com/pribylovaa/go-advanced-auth/internal/service"
	apierrors "github.com/pribylovaa/go-advanced-auth/internal/transport/http/errors"
	"github.com/pribylovaa/go-advanced-auth/internal/transport/http/middleware"
)

const msgBadBody = "invalid request body"

func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var in signupRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.Write(w, r, http.StatusBadRequest, msgBadBody)
		return
	}

	user, pair, err := h.svc.Signup(r.Context(), in.Email, in.Password, in.Name)
	h.observe(metrics.EventSignup, err)
	if err != nil {
		fail(w, r, "signup", err)
		return
	}

	h.cookies.SetPair(w, pair)
	writeJSON(w, http.StatusCreated, ok("User created successfully", user))
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.Write(w, r, http.StatusBadRequest, msgBadBody)
		return
	}

	user, pair, err := h.svc.Login(r.Context(), service.LoginInput{
		Email:        in.Email,
		Password:     in.Password,
		CaptchaToken: in.CaptchaToken,
		RemoteIP:     remoteIP(r),
	})
	h.observe(metrics.EventLogin, err)
	if err != nil {
		fail(w, r, "login", err)
		return
	}

	h.cookies.SetPair(w, pair)
	writeJSON(w, http.StatusOK, ok("Logged in successfully", user))
}

// Logout отзывает refresh-токен из cookie (если он есть) и удаляет обе cookie.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Logout(r.Context(), cookieValue(r, RefreshCookie))
	h.observe(metrics.EventLogout, err)
	if err != nil {
		fail(w, r, "logout", err)
		return
	}

	h.cookies.Clear(w)
	writeJSON(w, http.StatusOK, ok("Logged out successfully", nil))
}

// RefreshToken обменивает refresh-cookie на новую пару токенов.
//   - cookie нет — 401;
//   - подпись/срок не прошли — 401;
//   - токен не совпадает с реестром — 403.
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token := cookieValue(r, RefreshCookie)
	if token == "" {
		h.observe(metrics.EventRefresh, service.ErrInvalidToken)
		apierrors.Write(w, r, http.StatusUnauthorized, "Unauthorized - no refresh token provided")
		return
	}

	pair, _, err := h.svc.Refresh(r.Context(), token)
	h.observe(metrics.EventRefresh, err)
	if err != nil {
		fail(w, r, "refresh", err)
		return
	}

	h.cookies.SetPair(w, pair)
	writeJSON(w, http.StatusOK, ok("Token refreshed successfully", nil))
}

func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var in codeRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.Write(w, r, http.StatusBadRequest, msgBadBody)
		return
	}

	user, err := h.svc.VerifyEmail(r.Context(), in.Code)
	h.observe(metrics.EventVerify, err)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrExpiredCode) {
			apierrors.Write(w, r, http.StatusBadRequest, "Invalid or expired verification code")
			return
		}
		fail(w, r, "verify_email", err)
		return
	}

	writeJSON(w, http.StatusOK, ok("Email verified successfully", user))
}

// ResendVerificationCode: 400 — e-mail не указан или уже подтверждён, 404 — пользователя нет.
func (h *Handlers) ResendVerificationCode(w http.ResponseWriter, r *http.Request) {
	var in emailRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.Write(w, r, http.StatusBadRequest, msgBadBody)
		return
	}

	err := h.svc.ResendVerificationCode(r.Context(), in.Email)
	h.observe(metrics.EventResend, err)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.Write(w, r, http.StatusBadRequest, "Email is required")
			return
		}
		fail(w, r, "resend_verification_code", err)
		return
	}

	writeJSON(w, http.StatusOK, ok("Verification code sent to your email", nil))
}

func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in emailRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.Write(w, r, http.StatusBadRequest, msgBadBody)
		return
	}

	err := h.svc.ForgotPassword(r.Context(), in.Email)
	h.observe(metrics.EventForgot, err)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			apierrors.Write(w, r, http.StatusBadRequest, "User not found")
			return
		}
		fail(w, r, "forgot_password", err)
		return
	}

	writeJSON(w, http.StatusOK, ok("Password reset link sent to your email", nil))
}

func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in passwordRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.Write(w, r, http.StatusBadRequest, msgBadBody)
		return
	}

	err := h.svc.ResetPassword(r.Context(), chi.URLParam(r, "token"), in.Password)
	h.observe(metrics.EventReset, err)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrExpiredCode) {
			apierrors.Write(w, r, http.StatusBadRequest, "Invalid or expired reset token")
			return
		}
		fail(w, r, "reset_password", err)
		return
	}

	writeJSON(w, http.StatusOK, ok("Password reset successful", nil))
}

// CheckAuth возвращает текущего пользователя; маршрут закрыт Session-middleware.
func (h *Handlers) CheckAuth(w http.ResponseWriter, r *http.Request) {
	uid, found := middleware.UserID(r.Context())
	if !found {
		apierrors.Write(w, r, http.StatusUnauthorized, "Unauthorized - no token provided")
		return
	}

	user, err := h.svc.CheckAuth(r.Context(), uid)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			apierrors.Write(w, r, http.StatusBadRequest, "User not found")
			return
		}
		fail(w, r, "check_auth", err)
		return
	}

	writeJSON(w, http.StatusOK, ok("", user))
}

// fail пишет ответ об ошибке; непредвиденные ошибки логируются с деталями,
// клиент получает только безопасное сообщение.
func fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	if status, _ := apierrors.ToHTTP(err); status >= http.StatusInternalServerError {
		log.From(r.Context()).Error(action+"_failed", slog.String("err", err.Error()))
	}

	apierrors.WriteError(w, r, err)
}

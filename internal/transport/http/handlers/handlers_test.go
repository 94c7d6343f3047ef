package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-advanced-auth/internal/models"
	"github.com/pribylovaa/go-advanced-auth/internal/service"
	"github.com/pribylovaa/go-advanced-auth/internal/transport/http/middleware"
)

// fakeService — AuthService с подменяемыми операциями.
// Неподменённая операция возвращает внутреннюю ошибку.
type fakeService struct {
	login     func(context.Context, service.LoginInput) (*models.User, *models.TokenPair, error)
	logout    func(context.Context, string) error
	refresh   func(context.Context, string) (*models.TokenPair, string, error)
	checkAuth func(context.Context, string) (*models.User, error)
	reset     func(context.Context, string, string) error
}

var errUnexpected = errors.New("mongo: server selection timeout")

func (f *fakeService) Signup(context.Context, string, string, string) (*models.User, *models.TokenPair, error) {
	return nil, nil, errUnexpected
}

func (f *fakeService) Login(ctx context.Context, in service.LoginInput) (*models.User, *models.TokenPair, error) {
	if f.login != nil {
		return f.login(ctx, in)
	}
	return nil, nil, errUnexpected
}

func (f *fakeService) Logout(ctx context.Context, token string) error {
	if f.logout != nil {
		return f.logout(ctx, token)
	}
	return errUnexpected
}

func (f *fakeService) Refresh(ctx context.Context, token string) (*models.TokenPair, string, error) {
	if f.refresh != nil {
		return f.refresh(ctx, token)
	}
	return nil, "", errUnexpected
}

func (f *fakeService) CheckAuth(ctx context.Context, uid string) (*models.User, error) {
	if f.checkAuth != nil {
		return f.checkAuth(ctx, uid)
	}
	return nil, errUnexpected
}

func (f *fakeService) VerifyEmail(context.Context, string) (*models.User, error) {
	return nil, errUnexpected
}

func (f *fakeService) ResendVerificationCode(context.Context, string) error { return errUnexpected }
func (f *fakeService) ForgotPassword(context.Context, string) error         { return errUnexpected }

func (f *fakeService) ResetPassword(ctx context.Context, token, password string) error {
	if f.reset != nil {
		return f.reset(ctx, token, password)
	}
	return errUnexpected
}

func testCookies() Cookies {
	return Cookies{Secure: true, Domain: "example.com", AccessTTL: 15 * time.Minute, RefreshTTL: 7 * 24 * time.Hour}
}

func testPair() *models.TokenPair {
	return &models.TokenPair{AccessToken: "acc", RefreshToken: "ref"}
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestLogin_PassesCaptchaAndRemoteIP(t *testing.T) {
	var got service.LoginInput
	h := New(&fakeService{
		login: func(_ context.Context, in service.LoginInput) (*models.User, *models.TokenPair, error) {
			got = in
			return &models.User{ID: "u1", Email: in.Email, PasswordHash: "secret-hash"}, testPair(), nil
		},
	}, testCookies(), nil)

	req := httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(`{"email":"a@x.com","password":"pw","captchaToken":"cap"}`))
	req.RemoteAddr = "10.1.2.3:5555"
	rr := httptest.NewRecorder()
	h.Login(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, service.LoginInput{Email: "a@x.com", Password: "pw", CaptchaToken: "cap", RemoteIP: "10.1.2.3"}, got)
	require.NotContains(t, rr.Body.String(), "secret-hash")

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		require.True(t, c.HttpOnly)
		require.True(t, c.Secure)
		require.Equal(t, "example.com", c.Domain)
		require.Equal(t, http.SameSiteLaxMode, c.SameSite)
	}
}

func TestLogin_CaptchaFailed(t *testing.T) {
	h := New(&fakeService{
		login: func(context.Context, service.LoginInput) (*models.User, *models.TokenPair, error) {
			return nil, nil, fmt.Errorf("service.auth.Login: %w", service.ErrCaptchaFailed)
		},
	}, testCookies(), nil)

	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"a@x.com","password":"pw"}`)))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Verify you are not a robot", decode(t, rr)["message"])
	require.Empty(t, rr.Result().Cookies())
}

// TestInternalErrorNotLeaked — непредвиденная ошибка даёт 500 с фиксированным текстом.
func TestInternalErrorNotLeaked(t *testing.T) {
	h := New(&fakeService{}, testCookies(), nil)

	rr := httptest.NewRecorder()
	h.Signup(rr, httptest.NewRequest(http.MethodPost, "/signup",
		strings.NewReader(`{"email":"a@x.com","password":"pw","name":"A"}`)))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode(t, rr)
	require.Equal(t, false, body["success"])
	require.Equal(t, "internal server error", body["error"])
	require.NotContains(t, rr.Body.String(), "mongo")
}

func TestBadBody(t *testing.T) {
	h := New(&fakeService{}, testCookies(), nil)

	for _, body := range []string{"", "{", `{"email":1}`, `{"unknown":"x"}`} {
		rr := httptest.NewRecorder()
		h.Login(rr, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
}

func TestLogout_ClearsCookiesEvenWithoutToken(t *testing.T) {
	var seen = "unset"
	h := New(&fakeService{
		logout: func(_ context.Context, token string) error {
			seen = token
			return nil
		},
	}, testCookies(), nil)

	rr := httptest.NewRecorder()
	h.Logout(rr, httptest.NewRequest(http.MethodPost, "/logout", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "", seen)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		require.Equal(t, -1, c.MaxAge)
		require.Empty(t, c.Value)
	}
}

func TestRefreshToken_Statuses(t *testing.T) {
	tcs := []struct {
		name   string
		cookie string
		err    error
		want   int
	}{
		{"missing", "", nil, http.StatusUnauthorized},
		{"invalid", "tok", service.ErrInvalidToken, http.StatusUnauthorized},
		{"revoked", "tok", service.ErrTokenRevoked, http.StatusForbidden},
		{"registry_down", "tok", errors.New("redis: connection refused"), http.StatusInternalServerError},
		{"ok", "tok", nil, http.StatusOK},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			h := New(&fakeService{
				refresh: func(_ context.Context, token string) (*models.TokenPair, string, error) {
					require.Equal(t, tc.cookie, token)
					if tc.err != nil {
						return nil, "", fmt.Errorf("service.auth.Refresh: %w", tc.err)
					}
					return testPair(), "u1", nil
				},
			}, testCookies(), nil)

			req := httptest.NewRequest(http.MethodPost, "/refresh-token", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: tc.cookie})
			}
			rr := httptest.NewRecorder()
			h.RefreshToken(rr, req)

			require.Equal(t, tc.want, rr.Code)
			if tc.want == http.StatusOK {
				require.Len(t, rr.Result().Cookies(), 2)
			} else {
				require.NotEmpty(t, decode(t, rr)["error"])
			}
		})
	}
}

func TestCheckAuth_UserGone(t *testing.T) {
	h := New(&fakeService{
		checkAuth: func(_ context.Context, uid string) (*models.User, error) {
			require.Equal(t, "u1", uid)
			return nil, service.ErrUserNotFound
		},
	}, testCookies(), nil)

	verifier := verifierFunc(func(string) (string, error) { return "u1", nil })
	handler := middleware.Session(verifier, AccessCookie)(http.HandlerFunc(h.CheckAuth))

	req := httptest.NewRequest(http.MethodGet, "/check-auth", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: "acc"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "User not found", decode(t, rr)["message"])
}

func TestCheckAuth_WithoutSession(t *testing.T) {
	h := New(&fakeService{}, testCookies(), nil)

	rr := httptest.NewRecorder()
	h.CheckAuth(rr, httptest.NewRequest(http.MethodGet, "/check-auth", nil))

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestResetPassword_TokenFromURL(t *testing.T) {
	var gotToken, gotPW string
	h := New(&fakeService{
		reset: func(_ context.Context, token, pw string) error {
			gotToken, gotPW = token, pw
			return nil
		},
	}, testCookies(), nil)

	r := chi.NewRouter()
	r.Post("/reset-password/{token}", h.ResetPassword)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/reset-password/abc123", strings.NewReader(`{"password":"new"}`)))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "abc123", gotToken)
	require.Equal(t, "new", gotPW)
}

type verifierFunc func(string) (string, error)

func (f verifierFunc) VerifyAccess(token string) (string, error) { return f(token) }

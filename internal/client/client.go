// client — HTTP-клиент auth API. Токены живут только в cookie jar
// (httpOnly cookie сервера), в коде клиента они не видны.
//
// Каждый запрос идёт через Refresher: получив 401, запрос ждёт единственное
// общее обновление сессии и повторяется не более одного раза. Неудачное
// обновление переводит клиент в состояние «не авторизован» (ErrLoggedOut).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const (
	pathSignup        = "/signup"
	pathLogin         = "/login"
	pathLogout        = "/logout"
	pathRefresh       = "/refresh-token"
	pathVerifyEmail   = "/verify-email"
	pathResend        = "/resend-verification-code"
	pathForgot        = "/forgot-password"
	pathResetPassword = "/reset-password/"
	pathCheckAuth     = "/check-auth"
)

// maxBody ограничивает размер читаемого ответа.
const maxBody = 1 << 20

// User — пользователь в ответах API.
type User struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	IsVerified bool       `json:"isVerified"`
	LastLogin  *time.Time `json:"lastLogin,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// APIError — ответ сервера с кодом не 2xx.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth api: status=%d: %s", e.Status, e.Message)
}

// StatusOf возвращает HTTP-статус из ошибки клиента (0, если это не APIError).
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
	User    *User  `json:"user"`
}

// Options — параметры клиента.
type Options struct {
	// HTTPClient — транспорт; без Jar клиенту назначается новый cookiejar.
	HTTPClient *http.Client
	// OnLogout вызывается, когда обновить сессию не удалось.
	OnLogout func()
}

// Client — клиент auth API.
type Client struct {
	baseURL  string
	base     *url.URL
	http     *http.Client
	sessions *Refresher
}

// New создаёт клиент для API с префиксом baseURL (например, http://localhost:5000/api/auth).
func New(baseURL string, opts Options) (*Client, error) {
	const op = "client.New"

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		withJar := *hc
		withJar.Jar = jar
		hc = &withJar
	}

	trimmed := strings.TrimRight(baseURL, "/")
	base, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c := &Client{
		baseURL: trimmed,
		base:    base,
		http:    hc,
	}
	c.sessions = NewRefresher(c.refresh, opts.OnLogout)

	return c, nil
}

// LoggedOut сообщает, что сессия истекла и требуется вход.
func (c *Client) LoggedOut() bool {
	return c.sessions.LoggedOut()
}

func (c *Client) Signup(ctx context.Context, email, password, name string) (*User, error) {
	var out envelope
	err := c.call(ctx, http.MethodPost, pathSignup, map[string]string{
		"email": email, "password": password, "name": name,
	}, &out)
	if err != nil {
		return nil, err
	}

	c.sessions.Reset()
	return out.User, nil
}

// Login входит по e-mail и паролю. captchaToken пуст, если капча на сервере отключена.
func (c *Client) Login(ctx context.Context, email, password, captchaToken string) (*User, error) {
	in := map[string]string{"email": email, "password": password}
	if captchaToken != "" {
		in["captchaToken"] = captchaToken
	}

	var out envelope
	if err := c.call(ctx, http.MethodPost, pathLogin, in, &out); err != nil {
		return nil, err
	}

	c.sessions.Reset()
	return out.User, nil
}

// Logout завершает сессию на сервере. Локальные cookie сбрасываются
// даже при ошибке запроса.
func (c *Client) Logout(ctx context.Context) error {
	err := c.call(ctx, http.MethodPost, pathLogout, nil, nil)
	c.dropSession()
	return err
}

func (c *Client) VerifyEmail(ctx context.Context, code string) (*User, error) {
	var out envelope
	if err := c.call(ctx, http.MethodPost, pathVerifyEmail, map[string]string{"code": code}, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

func (c *Client) ResendVerificationCode(ctx context.Context, email string) error {
	return c.call(ctx, http.MethodPost, pathResend, map[string]string{"email": email}, nil)
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.call(ctx, http.MethodPost, pathForgot, map[string]string{"email": email}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	return c.call(ctx, http.MethodPost, pathResetPassword+url.PathEscape(token), map[string]string{"password": password}, nil)
}

// CheckAuth возвращает текущего пользователя (защищённый маршрут).
func (c *Client) CheckAuth(ctx context.Context) (*User, error) {
	var out envelope
	if err := c.call(ctx, http.MethodGet, pathCheckAuth, nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// Refresh принудительно обновляет сессию через координатор.
func (c *Client) Refresh(ctx context.Context) error {
	return c.sessions.Refresh(ctx, c.sessions.Generation())
}

// refresh — само обновление; вызывается только координатором.
// При неудаче сессионные cookie сбрасываются до того, как ожидающие запросы
// получат ошибку.
func (c *Client) refresh(ctx context.Context) error {
	status, payload, err := c.send(ctx, http.MethodPost, pathRefresh, nil)
	if err != nil {
		c.dropSession()
		return err
	}
	if status != http.StatusOK {
		c.dropSession()
		return apiError(status, payload)
	}
	return nil
}

// dropSession удаляет из jar все cookie, которые отправлялись бы на baseURL.
// Сервер ставит их с Path "/", поэтому удаление идёт по тому же пути.
func (c *Client) dropSession() {
	if c.http.Jar == nil {
		return
	}

	stale := c.http.Jar.Cookies(c.base)
	if len(stale) == 0 {
		return
	}

	expired := make([]*http.Cookie, 0, len(stale))
	for _, ck := range stale {
		expired = append(expired, &http.Cookie{Name: ck.Name, Path: "/", MaxAge: -1})
	}
	c.http.Jar.SetCookies(c.base, expired)
}

// call выполняет запрос и при 401 один раз повторяет его после обновления сессии.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	const op = "client.call"

	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		body = b
	}

	seen := c.sessions.Generation()
	status, payload, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && path != pathRefresh {
		if err := c.sessions.Refresh(ctx, seen); err != nil {
			return err
		}

		status, payload, err = c.send(ctx, method, path, body)
		if err != nil {
			return err
		}
	}

	if status < 200 || status > 299 {
		return apiError(status, payload)
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%s: decode: %w", op, err)
		}
	}

	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	const op = "client.send"

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, nil, fmt.Errorf("%s: read: %w", op, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, payload, nil
}

func apiError(status int, payload []byte) error {
	var env envelope
	_ = json.Unmarshal(payload, &env)

	msg := env.Message
	if msg == "" {
		msg = env.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	return &APIError{Status: status, Message: msg}
}

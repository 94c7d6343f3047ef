// captcha — внешняя проверка «не робот» перед входом (reCAPTCHA siteverify).
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pribylovaa/go-advanced-auth/internal/pkg/log"
)

// ErrRejected — проверка не пройдена (пустой или отвергнутый токен).
var ErrRejected = errors.New("captcha rejected")

// Verifier — ответ да/нет на токен, полученный клиентом от виджета.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// Noop пропускает всё; используется при пустом секрете.
type Noop struct{}

func (Noop) Verify(context.Context, string, string) error { return nil }

// Recaptcha проверяет токен через siteverify.
type Recaptcha struct {
	client   *http.Client
	endpoint string
	secret   string
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// NewRecaptcha создаёт клиента siteverify. nil-клиент — таймаут 5s.
func NewRecaptcha(client *http.Client, endpoint, secret string) *Recaptcha {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	return &Recaptcha{client: client, endpoint: endpoint, secret: secret}
}

// New выбирает реализацию по конфигурации: пустой секрет — Noop.
func New(endpoint, secret string) Verifier {
	if strings.TrimSpace(secret) == "" {
		return Noop{}
	}

	return NewRecaptcha(nil, endpoint, secret)
}

func (r *Recaptcha) Verify(ctx context.Context, token, remoteIP string) error {
	const op = "captcha.Recaptcha.Verify"

	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%s: %w", op, ErrRejected)
	}

	form := url.Values{}
	form.Set("secret", r.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: new_request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: do: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: status=%d", op, resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}

	if !out.Success {
		log.From(ctx).Info("captcha_rejected",
			slog.String("op", op),
			slog.Any("codes", out.ErrorCodes),
		)
		return fmt.Errorf("%s: %w", op, ErrRejected)
	}

	return nil
}

package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pribylovaa/go-advanced-auth/internal/pkg/log"
	"github.com/pribylovaa/go-advanced-auth/internal/pkg/redact"
)

// MailtrapSender отправляет письма через HTTP API Mailtrap (/api/send).
type MailtrapSender struct {
	client   *http.Client
	endpoint string
	token    string
	from     address
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendRequest struct {
	From     address   `json:"from"`
	To       []address `json:"to"`
	Subject  string    `json:"subject"`
	HTML     string    `json:"html"`
	Category string    `json:"category,omitempty"`
}

// NewMailtrapSender создаёт отправителя. HTTP-клиент настраивается извне;
// nil — клиент с таймаутом 10s.
func NewMailtrapSender(client *http.Client, endpoint, token, senderEmail, senderName string) *MailtrapSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &MailtrapSender{
		client:   client,
		endpoint: endpoint,
		token:    token,
		from:     address{Email: senderEmail, Name: senderName},
	}
}

func (m *MailtrapSender) Send(ctx context.Context, kind Kind, to string, params map[string]string) error {
	const op = "mailer.MailtrapSender.Send"

	lg := log.From(ctx)

	msg, err := Render(kind, to, params)
	if err != nil {
		return err
	}

	body, err := json.Marshal(sendRequest{
		From:     m.from,
		To:       []address{{Email: msg.To}},
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Category: msg.Category,
	})
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: new_request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.token)

	resp, err := m.client.Do(req)
	if err != nil {
		lg.Warn("mailtrap_http_error",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: do: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: status=%d", op, resp.StatusCode)
	}

	lg.Debug("mail_sent",
		slog.String("kind", string(kind)),
		slog.String("to", redact.Email(to)),
	)

	return nil
}

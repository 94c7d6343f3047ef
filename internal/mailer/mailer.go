// mailer отправляет транзакционные письма: код подтверждения, приветствие,
// ссылку сброса пароля и уведомление об успешном сбросе.
//
// Sender вызывается сервисным слоем синхронно; ошибка отправки не откатывает
// уже зафиксированное изменение состояния, сервис её только логирует.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/pribylovaa/go-advanced-auth/internal/pkg/log"
	"github.com/pribylovaa/go-advanced-auth/internal/pkg/redact"
)

// Kind — вид письма.
type Kind string

const (
	KindVerification  Kind = "verification"
	KindWelcome       Kind = "welcome"
	KindPasswordReset Kind = "password_reset"
	KindResetSuccess  Kind = "reset_success"
)

// Ключи параметров шаблонов.
const (
	ParamCode     = "code"
	ParamName     = "name"
	ParamResetURL = "resetURL"
)

// ErrUnknownKind — для вида письма нет шаблона.
var ErrUnknownKind = errors.New("unknown mail kind")

// Sender — отправка письма вида kind получателю to с параметрами шаблона.
type Sender interface {
	Send(ctx context.Context, kind Kind, to string, params map[string]string) error
}

// Message — готовое к отправке письмо.
type Message struct {
	To       string
	Subject  string
	HTML     string
	Category string
}

type tmpl struct {
	subject  string
	category string
	body     *template.Template
}

var templates = map[Kind]tmpl{
	KindVerification: {
		subject:  "Verify your email",
		category: "Email Verification",
		body: template.Must(template.New("verification").Parse(
			`<p>Hello,</p><p>Thank you for signing up! Your verification code is:</p>` +
				`<h1 style="letter-spacing:5px">{{.code}}</h1>` +
				`<p>Enter this code on the verification page to complete your registration.</p>` +
				`<p>This code will expire in 24 hours for security reasons.</p>`)),
	},
	KindWelcome: {
		subject:  "Welcome!",
		category: "Welcome",
		body: template.Must(template.New("welcome").Parse(
			`<p>Hello {{.name}},</p><p>Your email has been verified. Welcome aboard!</p>`)),
	},
	KindPasswordReset: {
		subject:  "Reset your password",
		category: "Password Reset",
		body: template.Must(template.New("password_reset").Parse(
			`<p>We received a request to reset your password.</p>` +
				`<p><a href="{{.resetURL}}">Reset Password</a></p>` +
				`<p>This link will expire in 1 hour. If you didn't make this request, please ignore this email.</p>`)),
	},
	KindResetSuccess: {
		subject:  "Password Reset Successful",
		category: "Password Reset",
		body: template.Must(template.New("reset_success").Parse(
			`<p>Hello,</p><p>Your password has been successfully reset.</p>` +
				`<p>If you did not initiate this password reset, please contact our support team immediately.</p>`)),
	},
}

// Render собирает письмо по шаблону.
func Render(kind Kind, to string, params map[string]string) (Message, error) {
	const op = "mailer.Render"

	t, ok := templates[kind]
	if !ok {
		return Message{}, fmt.Errorf("%s: %w: %s", op, ErrUnknownKind, kind)
	}

	var buf bytes.Buffer
	if err := t.body.Execute(&buf, params); err != nil {
		return Message{}, fmt.Errorf("%s: execute: %w", op, err)
	}

	return Message{
		To:       to,
		Subject:  t.subject,
		HTML:     buf.String(),
		Category: t.category,
	}, nil
}

// LogSender пишет письма в лог вместо отправки (локальный запуск).
type LogSender struct{}

// NewLogSender создаёт LogSender.
func NewLogSender() *LogSender { return &LogSender{} }

func (LogSender) Send(ctx context.Context, kind Kind, to string, params map[string]string) error {
	const op = "mailer.LogSender.Send"

	msg, err := Render(kind, to, params)
	if err != nil {
		return err
	}

	// Код и ссылка печатаются как есть: это единственный способ получить их локально.
	log.From(ctx).Info("mail_logged",
		slog.String("op", op),
		slog.String("kind", string(kind)),
		slog.String("to", redact.Email(to)),
		slog.String("subject", msg.Subject),
		slog.Any("params", params),
	)

	return nil
}

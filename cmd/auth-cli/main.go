// auth-cli — интерактивный клиент auth API. Все запросы идут через
// координатор обновления сессии: истёкший access-токен обновляется прозрачно.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/pribylovaa/go-advanced-auth/internal/client"
)

// api — операции клиента, которые использует REPL.
type api interface {
	Signup(ctx context.Context, email, password, name string) (*client.User, error)
	Login(ctx context.Context, email, password, captchaToken string) (*client.User, error)
	Logout(ctx context.Context) error
	VerifyEmail(ctx context.Context, code string) (*client.User, error)
	ResendVerificationCode(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	CheckAuth(ctx context.Context) (*client.User, error)
}

const help = `commands:
  signup                  register (asks email, name, password)
  login                   sign in (asks email, password)
  logout                  sign out
  verify <code>           confirm email with the 6-digit code
  resend <email>          resend the verification code
  forgot <email>          request a password reset link
  reset <token>           set a new password by reset token
  me                      show the current user
  help                    show this help
  quit                    exit`

func main() {
	var (
		baseURL string
		timeout time.Duration
		verbose bool
	)
	flag.StringVar(&baseURL, "url", "http://localhost:5000/api/auth", "auth API base URL")
	flag.DurationVar(&timeout, "timeout", 15*time.Second, "request timeout")
	flag.BoolVar(&verbose, "v", false, "debug logging to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := client.New(baseURL, client.Options{
		OnLogout: func() { fmt.Fprintln(os.Stdout, "session expired, please login again") },
	})
	if err != nil {
		slog.Error("client_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	r := &repl{
		api:     c,
		in:      bufio.NewScanner(os.Stdin),
		out:     os.Stdout,
		timeout: timeout,
		secret:  terminalSecret(os.Stdin, os.Stdout),
	}

	if err := r.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("cli_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

// terminalSecret читает пароль без эха, если stdin — терминал.
// Для не-терминала возвращает nil: пароль читается обычной строкой.
func terminalSecret(in *os.File, out io.Writer) func() (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}

	return func() (string, error) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		return string(b), err
	}
}

type repl struct {
	api     api
	in      *bufio.Scanner
	out     io.Writer
	timeout time.Duration
	secret  func() (string, error) // nil — читать из in
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintln(r.out, help)

	for {
		fmt.Fprint(r.out, "> ")
		if !r.in.Scan() {
			return r.in.Err()
		}

		fields := strings.Fields(r.in.Text())
		if len(fields) == 0 {
			continue
		}

		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}

		if err := r.exec(ctx, fields[0], fields[1:]); err != nil {
			fmt.Fprintf(r.out, "error: %s\n", describe(err))
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (r *repl) exec(ctx context.Context, cmd string, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	switch cmd {
	case "help":
		fmt.Fprintln(r.out, help)
		return nil

	case "signup":
		email, err := r.prompt("email: ")
		if err != nil {
			return err
		}
		name, err := r.prompt("name: ")
		if err != nil {
			return err
		}
		pw, err := r.password("password: ")
		if err != nil {
			return err
		}
		u, err := r.api.Signup(ctx, email, pw, name)
		if err != nil {
			return err
		}
		r.printUser("signed up", u)
		fmt.Fprintln(r.out, "check your inbox for the verification code")
		return nil

	case "login":
		email, err := r.prompt("email: ")
		if err != nil {
			return err
		}
		pw, err := r.password("password: ")
		if err != nil {
			return err
		}
		var captchaToken string
		if len(args) > 0 {
			captchaToken = args[0]
		}
		u, err := r.api.Login(ctx, email, pw, captchaToken)
		if err != nil {
			return err
		}
		r.printUser("logged in", u)
		return nil

	case "logout":
		if err := r.api.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "logged out")
		return nil

	case "verify":
		code, err := arg(args, "verify <code>")
		if err != nil {
			return err
		}
		u, err := r.api.VerifyEmail(ctx, code)
		if err != nil {
			return err
		}
		r.printUser("email verified", u)
		return nil

	case "resend":
		email, err := arg(args, "resend <email>")
		if err != nil {
			return err
		}
		if err := r.api.ResendVerificationCode(ctx, email); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "verification code sent")
		return nil

	case "forgot":
		email, err := arg(args, "forgot <email>")
		if err != nil {
			return err
		}
		if err := r.api.ForgotPassword(ctx, email); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "password reset link sent")
		return nil

	case "reset":
		token, err := arg(args, "reset <token>")
		if err != nil {
			return err
		}
		pw, err := r.password("new password: ")
		if err != nil {
			return err
		}
		if err := r.api.ResetPassword(ctx, token, pw); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "password changed, please login")
		return nil

	case "me":
		u, err := r.api.CheckAuth(ctx)
		if err != nil {
			return err
		}
		r.printUser("current user", u)
		return nil

	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func (r *repl) prompt(label string) (string, error) {
	fmt.Fprint(r.out, label)
	if !r.in.Scan() {
		if err := r.in.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(r.in.Text()), nil
}

func (r *repl) password(label string) (string, error) {
	if r.secret == nil {
		return r.prompt(label)
	}

	fmt.Fprint(r.out, label)
	return r.secret()
}

func (r *repl) printUser(title string, u *client.User) {
	if u == nil {
		fmt.Fprintln(r.out, title)
		return
	}

	verified := "no"
	if u.IsVerified {
		verified = "yes"
	}
	fmt.Fprintf(r.out, "%s: %s <%s> verified=%s\n", title, u.Name, u.Email, verified)
}

func arg(args []string, usage string) (string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("usage: %s", usage)
	}
	return args[0], nil
}

// describe — короткое сообщение об ошибке для пользователя.
func describe(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, client.ErrLoggedOut):
		return "session expired, please login again"
	case errors.As(err, &apiErr):
		return apiErr.Message
	default:
		return err.Error()
	}
}

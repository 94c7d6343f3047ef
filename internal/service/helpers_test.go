package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/go-advanced-auth/internal/config"
	"github.com/pribylovaa/go-advanced-auth/internal/mailer"
	"github.com/pribylovaa/go-advanced-auth/mocks"
)

func testCfg() config.AuthConfig {
	return config.AuthConfig{
		AccessSecret:        "unit-access-secret",
		RefreshSecret:       "unit-refresh-secret",
		AccessTokenTTL:      15 * time.Minute,
		RefreshTokenTTL:     7 * 24 * time.Hour,
		VerificationCodeTTL: 24 * time.Hour,
		ResetTokenTTL:       time.Hour,
		BcryptCost:          bcrypt.MinCost,
		ClientURL:           "http://localhost:5173",
	}
}

type deps struct {
	st    *mocks.MockStorage
	reg   *mocks.MockRefreshRegistry
	mail  *mocks.MockSender
	clock *fakeClock
	ctrl  *gomock.Controller
}

func newSvc(t *testing.T) (*Service, *deps) {
	t.Helper()

	ctrl := gomock.NewController(t)
	d := &deps{
		st:    mocks.NewMockStorage(ctrl),
		reg:   mocks.NewMockRefreshRegistry(ctrl),
		mail:  mocks.NewMockSender(ctrl),
		clock: newFakeClock(),
		ctrl:  ctrl,
	}

	svc := New(d.st, d.reg, testCfg())
	svc.SetMailer(d.mail)
	svc.SetClock(d.clock.Now)

	return svc, d
}

func mustHashPW(t *testing.T, pw string) string {
	t.Helper()

	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	return string(h)
}

// fakeClock — управляемые часы для проверок сроков.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// captureSender запоминает отправленные письма.
type captureSender struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	kind   mailer.Kind
	to     string
	params map[string]string
}

func (c *captureSender) Send(_ context.Context, kind mailer.Kind, to string, params map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMail{kind: kind, to: to, params: params})
	return nil
}

// last возвращает последнее письмо указанного вида.
func (c *captureSender) last(kind mailer.Kind) (sentMail, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].kind == kind {
			return c.sent[i], true
		}
	}

	return sentMail{}, false
}

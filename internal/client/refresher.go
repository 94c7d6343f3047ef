package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pribylovaa/go-advanced-auth/internal/pkg/log"
)

// ErrLoggedOut — обновить сессию не удалось, клиент перешёл в состояние
// «не авторизован». Нужен повторный вход.
var ErrLoggedOut = errors.New("session expired: login required")

// refreshTimeout ограничивает одно обновление, даже если вызвавший его
// запрос уже отменён.
const refreshTimeout = 15 * time.Second

type refreshState int

const (
	stateIdle refreshState = iota
	stateRefreshing
)

// pending — результат выполняющегося обновления, общий для всех ожидающих.
type pending struct {
	done chan struct{}
	err  error
}

// Refresher координирует обновление сессии: сколько бы запросов одновременно
// ни получили 401, выполняется ровно одно обновление, остальные ждут его
// результат.
//
// Состояния:
//   - Idle — обновление не идёт; только из него можно начать новое;
//   - Refreshing — идёт обновление, новые вызовы присоединяются к pending.
//
// По завершении координатор возвращается в Idle, а при успехе увеличивает
// поколение. Запрос, начатый в поколении g, не запускает обновление, если
// поколение уже больше g: его 401 вызван токеном, который к этому моменту
// заменён, достаточно повторить запрос.
type Refresher struct {
	refresh   func(ctx context.Context) error
	onLogout  func()
	mu        sync.Mutex
	state     refreshState
	cur       *pending
	gen       uint64
	loggedOut bool
	lastErr   error // причина перехода в «не авторизован»
}

// NewRefresher создаёт координатор. refresh выполняет само обновление;
// onLogout (может быть nil) вызывается при неудачном обновлении.
func NewRefresher(refresh func(ctx context.Context) error, onLogout func()) *Refresher {
	return &Refresher{refresh: refresh, onLogout: onLogout}
}

// Generation возвращает текущее поколение сессии. Запрос запоминает его
// до отправки и передаёт в Refresh, если получил 401.
func (r *Refresher) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// LoggedOut сообщает, что последнее обновление завершилось неудачей.
func (r *Refresher) LoggedOut() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loggedOut
}

// Reset возвращает координатор в рабочее состояние после нового входа.
func (r *Refresher) Reset() {
	r.mu.Lock()
	r.loggedOut = false
	r.lastErr = nil
	r.gen++
	r.mu.Unlock()
}

// Refresh обновляет сессию, увиденную запросом в поколении seen.
// Возвращает nil, если после seen сессия уже обновлена (этим или
// параллельным вызовом), и ErrLoggedOut при неудаче обновления.
func (r *Refresher) Refresh(ctx context.Context, seen uint64) error {
	r.mu.Lock()
	if r.gen > seen {
		r.mu.Unlock()
		return nil
	}

	if r.state == stateRefreshing {
		p := r.cur
		r.mu.Unlock()
		return wait(ctx, p)
	}

	if r.loggedOut {
		err := r.lastErr
		r.mu.Unlock()
		return err
	}

	p := &pending{done: make(chan struct{})}
	r.state = stateRefreshing
	r.cur = p
	r.mu.Unlock()

	go r.run(context.WithoutCancel(ctx), p)

	return wait(ctx, p)
}

func (r *Refresher) run(ctx context.Context, p *pending) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	err := r.refresh(ctx)

	r.mu.Lock()
	if err != nil {
		log.From(ctx).Warn("session_refresh_failed", slog.String("err", err.Error()))
		r.loggedOut = true
		p.err = errors.Join(ErrLoggedOut, err)
		r.lastErr = p.err
	} else {
		r.gen++
	}
	r.state = stateIdle
	r.cur = nil
	r.mu.Unlock()

	close(p.done)

	if err != nil && r.onLogout != nil {
		r.onLogout()
	}
}

func wait(ctx context.Context, p *pending) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

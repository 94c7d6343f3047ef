package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pribylovaa/go-advanced-auth/internal/cache"
	"github.com/pribylovaa/go-advanced-auth/internal/captcha"
	"github.com/pribylovaa/go-advanced-auth/internal/config"
	"github.com/pribylovaa/go-advanced-auth/internal/mailer"
	"github.com/pribylovaa/go-advanced-auth/internal/metrics"
	"github.com/pribylovaa/go-advanced-auth/internal/service"
	"github.com/pribylovaa/go-advanced-auth/internal/storage"
	"github.com/pribylovaa/go-advanced-auth/internal/storage/memory"
	"github.com/pribylovaa/go-advanced-auth/internal/storage/mongo"
	authhttp "github.com/pribylovaa/go-advanced-auth/internal/transport/http"
	"github.com/pribylovaa/go-advanced-auth/internal/transport/http/handlers"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting auth-service", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	// Хранилище c таймаутом подключения.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := openStorage(dbCtx, cfg.DB)
	dbCancel()
	if err != nil {
		log.Error("storage_connect_failed", slog.String("driver", cfg.DB.Driver), slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer str.Close()
	log.Info("storage_connected", slog.String("driver", cfg.DB.Driver))

	// Реестр refresh-токенов: без Redis сервис не стартует.
	registry, err := cache.NewRedisCache(cfg.Redis.RedisURL, cfg.Redis.KeyPrefix, cfg.Auth.RefreshTokenTTL)
	if err != nil {
		log.Error("redis_connect_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if cerr := registry.Close(); cerr != nil {
			log.Warn("redis_close_failed", slog.String("err", cerr.Error()))
		}
	}()
	log.Info("redis_connected")

	// Сервис.
	srvc := service.New(str, registry, cfg.Auth)
	srvc.SetMailer(newMailer(cfg.Mail))
	srvc.SetCaptcha(captcha.New(cfg.Captcha.Endpoint, cfg.Captcha.Secret))
	log.Info("service_initialized",
		slog.String("mail_provider", cfg.Mail.Provider),
		slog.Bool("captcha", cfg.Captcha.Secret != ""),
	)

	m := metrics.New(nil)

	apiHandler := authhttp.NewRouter(srvc, authhttp.Options{
		Logger:   log,
		Timeout:  cfg.Timeouts.Service,
		BasePath: cfg.HTTP.BasePath,
		Cookies: handlers.Cookies{
			Secure:     cfg.Cookie.Secure,
			Domain:     cfg.Cookie.Domain,
			AccessTTL:  cfg.Auth.AccessTokenTTL,
			RefreshTTL: cfg.Auth.RefreshTokenTTL,
		},
		Metrics: m,
	})

	var ready int32 // 0 — not ready; 1 — ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}

		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	mux.Handle("/metrics", m.Handler())

	mux.Handle("/", apiHandler)

	// Фоновая очистка просроченных одноразовых кодов.
	startCodeJanitor(rootCtx, srvc, log, cfg.Janitor.Period)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Error("http_listen_failed", slog.String("addr", httpAddr), slog.String("err", err.Error()))
		os.Exit(1)
	}

	log.Info("http_listen_start", slog.String("addr", httpAddr))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)
	log.Info("service_ready")

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	log.Info("service_stopped")
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// openStorage выбирает хранилище по драйверу из конфига.
func openStorage(ctx context.Context, cfg config.DBConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	default:
		st, err := mongo.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

// newMailer выбирает отправителя писем по провайдеру из конфига.
func newMailer(cfg config.MailConfig) mailer.Sender {
	switch cfg.Provider {
	case config.MailProviderMailtrap:
		return mailer.NewMailtrapSender(nil, cfg.Endpoint, cfg.Token, cfg.SenderEmail, cfg.SenderName)
	default:
		return mailer.NewLogSender()
	}
}

// startCodeJanitor запускает фоновую задачу, которая периодически стирает
// просроченные коды подтверждения и токены сброса пароля.
func startCodeJanitor(ctx context.Context, srvc *service.Service, log *slog.Logger, period time.Duration) {
	if period <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := srvc.ClearExpiredCodes(ctx); err != nil {
					log.Error("code_janitor_failed", slog.String("err", err.Error()))
				}
			}
		}
	}()
}

// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"golang.org/x/crypto/bcrypt"
)

// Драйверы хранилища пользователей.
const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Провайдеры отправки писем.
const (
	MailProviderLog      = "log"
	MailProviderMailtrap = "mailtrap"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Auth     AuthConfig    `yaml:"auth"`
	Cookie   CookieConfig  `yaml:"cookie"`
	DB       DBConfig      `yaml:"db"`
	Redis    RedisConfig   `yaml:"redis"`
	Mail     MailConfig    `yaml:"mail"`
	Captcha  CaptchaConfig `yaml:"captcha"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	Janitor  JanitorConfig `yaml:"janitor"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
}

// HTTPConfig — сетевые настройки HTTP-сервера.
type HTTPConfig struct {
	Host     string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"HTTP_PORT" env-default:"5000"`
	BasePath string `yaml:"base_path" env:"HTTP_BASE_PATH" env-default:"/api/auth"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// AuthConfig содержит параметры выпуска и валидации токенов и одноразовых кодов.
// Секреты access- и refresh-токенов обязаны различаться.
type AuthConfig struct {
	AccessSecret        string        `yaml:"access_secret" env:"ACCESS_TOKEN_SECRET" env-required:"true"`
	RefreshSecret       string        `yaml:"refresh_secret" env:"REFRESH_TOKEN_SECRET" env-required:"true"`
	AccessTokenTTL      time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL     time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	VerificationCodeTTL time.Duration `yaml:"verification_code_ttl" env:"VERIFICATION_CODE_TTL" env-default:"24h"`
	ResetTokenTTL       time.Duration `yaml:"reset_token_ttl" env:"RESET_TOKEN_TTL" env-default:"1h"`
	BcryptCost          int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
	ClientURL           string        `yaml:"client_url" env:"CLIENT_URL" env-default:"http://localhost:5173"`
}

// CookieConfig — атрибуты cookie с токенами.
type CookieConfig struct {
	Secure bool   `yaml:"secure" env:"COOKIE_SECURE" env-default:"false"`
	Domain string `yaml:"domain" env:"COOKIE_DOMAIN"`
}

// DBConfig — настройки подключения к хранилищу пользователей.
type DBConfig struct {
	Driver      string `yaml:"driver" env:"DB_DRIVER" env-default:"mongo"`
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL"`
}

// RedisConfig — настройки реестра refresh-токенов.
type RedisConfig struct {
	RedisURL  string `yaml:"redis_url" env:"REDIS_URL" env-required:"true"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"auth:refresh_token:"`
}

// MailConfig — отправка транзакционных писем.
type MailConfig struct {
	Provider    string `yaml:"provider" env:"MAIL_PROVIDER" env-default:"log"`
	Token       string `yaml:"token" env:"MAILTRAP_TOKEN"`
	Endpoint    string `yaml:"endpoint" env:"MAILTRAP_ENDPOINT" env-default:"https://send.api.mailtrap.io/api/send"`
	SenderEmail string `yaml:"sender_email" env:"MAIL_SENDER_EMAIL" env-default:"hello@demomailtrap.co"`
	SenderName  string `yaml:"sender_name" env:"MAIL_SENDER_NAME" env-default:"Advanced Auth"`
}

// CaptchaConfig — проверка "не робот" перед входом.
// Пустой Secret отключает проверку.
type CaptchaConfig struct {
	Secret   string `yaml:"secret" env:"RECAPTCHA_SECRET"`
	Endpoint string `yaml:"endpoint" env:"RECAPTCHA_ENDPOINT" env-default:"https://www.google.com/recaptcha/api/siteverify"`
}

// JanitorConfig — фоновая очистка просроченных одноразовых кодов.
type JanitorConfig struct {
	Period time.Duration `yaml:"period" env:"JANITOR_PERIOD" env-default:"30m"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// ВАЖНО: после чтения файла накладываем ENV-переменные поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		if err := cfg.Validate(); err != nil {
			return nil, err
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate проверяет согласованность значений, которые cleanenv проверить не может.
func (c *Config) Validate() error {
	const op = "config.Validate"

	var errs []error

	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		errs = append(errs, errors.New("access and refresh secrets must differ"))
	}

	ttls := map[string]time.Duration{
		"access_token_ttl":      c.Auth.AccessTokenTTL,
		"refresh_token_ttl":     c.Auth.RefreshTokenTTL,
		"verification_code_ttl": c.Auth.VerificationCodeTTL,
		"reset_token_ttl":       c.Auth.ResetTokenTTL,
	}
	for name, ttl := range ttls {
		if ttl <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt_cost must be in [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost))
	}

	switch c.DB.Driver {
	case DriverMongo:
		if c.DB.DatabaseURL == "" {
			errs = append(errs, errors.New("db_url is required for mongo driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown db driver %q", c.DB.Driver))
	}

	switch c.Mail.Provider {
	case MailProviderLog:
	case MailProviderMailtrap:
		if c.Mail.Token == "" {
			errs = append(errs, errors.New("mail token is required for mailtrap provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mail provider %q", c.Mail.Provider))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

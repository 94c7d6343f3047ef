package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix — пространство ключей реестра по умолчанию.
const DefaultPrefix = "auth:refresh_token:"

// RefreshRegistry — реестр отзыва refresh-токенов: на пользователя хранится
// не более одного действующего токена (его SHA-256), TTL равен сроку жизни токена.
//
// Недоступность Redis — жёсткая ошибка операции: методы возвращают её как есть.
type RefreshRegistry interface {
	// Store сохраняет токен пользователя, вытесняя предыдущий.
	Store(ctx context.Context, userID, token string) error
	// Lookup возвращает хэш сохранённого токена и признак его наличия.
	Lookup(ctx context.Context, userID string) (string, bool, error)
	// Rotate атомарно заменяет oldToken на newToken, если сохранён именно oldToken.
	// false — токен уже заменён или отозван (проигравший в гонке обновлений).
	Rotate(ctx context.Context, userID, oldToken, newToken string) (bool, error)
	// Revoke удаляет запись пользователя.
	Revoke(ctx context.Context, userID string) error
	// Close закрывает клиент Redis.
	Close() error
}

// rotateScript: KEYS[1] — ключ пользователя, ARGV — старый хэш, новый хэш, TTL в мс.
const rotateScript = `
local cur = redis.call('GET', KEYS[1])
if not cur or cur ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`

var rotateLua = redis.NewScript(rotateScript)

type redisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется DefaultPrefix.
func NewRedisCache(redisURL, prefix string, ttl time.Duration) (RefreshRegistry, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse url: %w", err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	return NewWithClient(rdb, prefix, ttl), nil
}

// NewWithClient оборачивает готовый клиент (используется в тестах с miniredis).
func NewWithClient(rdb *redis.Client, prefix string, ttl time.Duration) RefreshRegistry {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &redisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Digest возвращает hex(SHA-256) токена — в Redis токен в открытом виде не попадает.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (c *redisCache) key(userID string) string { return c.prefix + userID }

func (c *redisCache) Store(ctx context.Context, userID, token string) error {
	const op = "cache.Store"

	if err := c.rdb.Set(ctx, c.key(userID), Digest(token), c.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *redisCache) Lookup(ctx context.Context, userID string) (string, bool, error) {
	const op = "cache.Lookup"

	v, err := c.rdb.Get(ctx, c.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	return v, true, nil
}

func (c *redisCache) Rotate(ctx context.Context, userID, oldToken, newToken string) (bool, error) {
	const op = "cache.Rotate"

	res, err := rotateLua.Run(ctx, c.rdb,
		[]string{c.key(userID)},
		Digest(oldToken), Digest(newToken), c.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return res == 1, nil
}

func (c *redisCache) Revoke(ctx context.Context, userID string) error {
	const op = "cache.Revoke"

	if err := c.rdb.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *redisCache) Close() error { return c.rdb.Close() }

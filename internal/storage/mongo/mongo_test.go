package mongo

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-advanced-auth/internal/models"
	"github.com/pribylovaa/go-advanced-auth/internal/storage"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Интеграционные тесты хранилища пользователей поверх MongoDB.
//
// Запуск:
//
//	GO_TEST_INTEGRATION=1 go test ./internal/storage/mongo -v -race -count=1

// testTimeout — общий дедлайн на операции с БД в тестах.
const testTimeout = 10 * time.Second

// TestMain запускает MongoDB в контейнере один раз на весь пакет тестов.
// Адрес контейнера прокидывается в ENV DATABASE_URL, а каждый тест
// создаёт свою БД с уникальным именем (см. newTestURI).
func TestMain(m *testing.M) {
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		os.Exit(m.Run())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7.0",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(90 * time.Second),
	}

	mongoC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start mongo testcontainer: %v\n", err)
		os.Exit(1)
	}

	host, err := mongoC.Host(ctx)
	if err != nil {
		_ = mongoC.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := mongoC.MappedPort(ctx, "27017/tcp")
	if err != nil {
		_ = mongoC.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get mapped port: %v\n", err)
		os.Exit(1)
	}

	_ = os.Setenv("DATABASE_URL", fmt.Sprintf("mongodb://%s:%s", host, port.Port()))

	code := m.Run()

	_ = mongoC.Terminate(context.Background())
	os.Exit(code)
}

// newTestURI формирует URI отдельной тестовой БД.
func newTestURI(t *testing.T) string {
	t.Helper()

	baseURL := os.Getenv("DATABASE_URL")
	if baseURL == "" {
		baseURL = "mongodb://localhost:27017"
	}

	dbName := "auth_test_" + uuid.New().String()
	if baseURL[len(baseURL)-1] == '/' {
		return baseURL + dbName
	}

	return baseURL + "/" + dbName
}

// mustNewMongo создаёт подключение к тестовой БД и регистрирует очистку.
// Если переменная окружения GO_TEST_INTEGRATION не установлена — тест пропускается.
func mustNewMongo(t *testing.T) *Mongo {
	t.Helper()

	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	uri := newTestURI(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	m, err := New(ctx, uri)
	if err != nil {
		t.Fatalf("cannot connect to MongoDB in container: %v (DATABASE_URL=%s)", err, uri)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = m.db.Drop(ctx)
		m.Close()
	})

	return m
}

func newUser(email string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		Email:        email,
		Name:         "Alice",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    now,
		UpdatedAt:    now,
		Verification: models.OneTimeCode{Value: "123456", ExpiresAt: now.Add(24 * time.Hour)},
	}
}

// TestDatabaseFromURI — имя БД берётся из пути URI, иначе значение по умолчанию.
func TestDatabaseFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"mongodb://localhost:27017/auth", "auth"},
		{"mongodb://localhost:27017/", defaultDBName},
		{"mongodb://localhost:27017", defaultDBName},
		{"mongodb://user:pw@host/db?authSource=admin", "db"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, databaseFromURI(tt.uri), tt.uri)
	}
}

// TestCodeFields — назначения кода отображаются на разные пары полей.
func TestCodeFields(t *testing.T) {
	v, e := codeFields(models.PurposeEmailVerification)
	require.Equal(t, fieldVerificationToken, v)
	require.Equal(t, fieldVerificationExpire, e)

	v, e = codeFields(models.PurposePasswordReset)
	require.Equal(t, fieldResetToken, v)
	require.Equal(t, fieldResetExpire, e)
}

// TestDocRoundTrip — пустые коды не превращаются в «нулевые» коды со сроком.
func TestDocRoundTrip(t *testing.T) {
	u := newUser("a@x.com")
	doc := toDoc(u)
	require.Empty(t, doc.ResetPasswordToken)
	require.True(t, doc.ResetPasswordExpiresAt.IsZero())

	back := fromDoc(&doc)
	require.True(t, back.Reset.Empty())
	require.Equal(t, "123456", back.Verification.Value)
	require.True(t, back.Verification.ExpiresAt.Equal(toMS(u.Verification.ExpiresAt)))
}

func TestSaveUser_AndLookup(t *testing.T) {
	m := mustNewMongo(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	u := newUser("a@x.com")
	require.NoError(t, m.SaveUser(ctx, u))
	require.NotEmpty(t, u.ID)

	got, err := m.UserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, "Alice", got.Name)
	require.False(t, got.IsVerified)
	require.Equal(t, "123456", got.Verification.Value)

	got, err = m.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", got.Email)

	_, err = m.UserByEmail(ctx, "nobody@x.com")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = m.UserByID(ctx, "not-an-object-id")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestSaveUser_UniqueEmail — уникальный индекс закрывает гонку регистрации.
func TestSaveUser_UniqueEmail(t *testing.T) {
	m := mustNewMongo(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	const n = 5
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.SaveUser(ctx, newUser("dup@x.com"))
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, storage.ErrAlreadyExists)
	}
	require.Equal(t, 1, ok)
}

func TestUpdates(t *testing.T) {
	m := mustNewMongo(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	u := newUser("a@x.com")
	require.NoError(t, m.SaveUser(ctx, u))

	at := time.Now().UTC()
	require.NoError(t, m.TouchLastLogin(ctx, u.ID, at))

	got, err := m.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.LastLogin.Equal(toMS(at)))

	require.ErrorIs(t, m.TouchLastLogin(ctx, "65e0a0c9fd2f000000000000", at), storage.ErrNotFound)
}

// TestConsumeCode_OneTime — код гасится ровно один раз и не принимается после срока.
func TestConsumeCode_OneTime(t *testing.T) {
	m := mustNewMongo(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	now := time.Now().UTC()
	u := newUser("a@x.com")
	require.NoError(t, m.SaveUser(ctx, u))
	require.NoError(t, m.SetCode(ctx, u.ID, models.PurposePasswordReset,
		models.OneTimeCode{Value: "reset-token", ExpiresAt: now.Add(time.Hour)}))

	_, err := m.ConsumeCode(ctx, models.PurposePasswordReset, "reset-token", now.Add(2*time.Hour), storage.CodeEffect{PasswordHash: "new-hash"})
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = m.ConsumeCode(ctx, models.PurposePasswordReset, "wrong", now, storage.CodeEffect{PasswordHash: "new-hash"})
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Неудачные попытки не меняют запись.
	before, err := m.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "$2a$10$hash", before.PasswordHash)

	got, err := m.ConsumeCode(ctx, models.PurposePasswordReset, "reset-token", now, storage.CodeEffect{PasswordHash: "new-hash"})
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.True(t, got.Reset.Empty())
	require.Equal(t, "new-hash", got.PasswordHash)
	require.False(t, got.IsVerified)
	// Код подтверждения e-mail не затронут.
	require.Equal(t, "123456", got.Verification.Value)

	_, err = m.ConsumeCode(ctx, models.PurposePasswordReset, "reset-token", now, storage.CodeEffect{})
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Подтверждение e-mail тем же обновлением документа.
	verified, err := m.ConsumeCode(ctx, models.PurposeEmailVerification, "123456", now, storage.CodeEffect{MarkVerified: true})
	require.NoError(t, err)
	require.True(t, verified.IsVerified)
	require.True(t, verified.Verification.Empty())
}

func TestClearExpiredCodes(t *testing.T) {
	m := mustNewMongo(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	now := time.Now().UTC()
	u := newUser("a@x.com")
	require.NoError(t, m.SaveUser(ctx, u))
	require.NoError(t, m.SetCode(ctx, u.ID, models.PurposePasswordReset,
		models.OneTimeCode{Value: "old", ExpiresAt: now.Add(-time.Minute)}))

	require.NoError(t, m.ClearExpiredCodes(ctx, now))

	got, err := m.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.Reset.Empty())
	require.Equal(t, "123456", got.Verification.Value)
}

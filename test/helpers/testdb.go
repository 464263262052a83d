package helpers

import (
	"net/http"
	"sync"
	"testing"

	"mwork_messaging/internal/auth"
	"mwork_messaging/internal/config"
	"mwork_messaging/internal/database"
	"mwork_messaging/internal/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const TestJWTSecret = "my_super_secret_key_for_tests_12345"

var setupOnce sync.Once

// Setup один раз настраивает логгер и секрет JWT для тестов
func Setup() {
	setupOnce.Do(func() {
		logger.Setup(logger.Options{Env: "test", Level: "error"})
		auth.Init(TestJWTSecret, 0)
	})
}

// TestConfig - конфиг для in-memory sqlite без внешних сервисов
func TestConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Env = "test"
	cfg.Database.DSN = ":memory:"
	cfg.JWT.Secret = TestJWTSecret
	cfg.Log.Level = "error"
	return cfg
}

// NewTestDB открывает чистую in-memory базу с мигрированной схемой
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	Setup()

	db, err := database.Open(TestConfig())
	require.NoError(t, err, "Не удалось открыть тестовую БД")
	require.NoError(t, database.Migrate(db), "Не удалось выполнить миграции")

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// NewUserID - id пользователя из внешнего identity provider
func NewUserID() string {
	return uuid.NewString()
}

// Token выпускает JWT для пользователя с ролью
func Token(t *testing.T, userID, role string) string {
	t.Helper()
	Setup()

	token, err := auth.GenerateToken(userID, role)
	require.NoError(t, err)
	return token
}

// NewCandidate создает id кандидата и токен к нему
func NewCandidate(t *testing.T) (string, string) {
	userID := NewUserID()
	return userID, Token(t, userID, auth.RoleCandidate)
}

// NewEmployer создает id работодателя и токен к нему
func NewEmployer(t *testing.T) (string, string) {
	userID := NewUserID()
	return userID, Token(t, userID, auth.RoleEmployer)
}

// AssertStatus сравнивает код ответа и печатает тело при расхождении
func AssertStatus(t *testing.T, expected int, res *http.Response, body string) {
	t.Helper()
	require.Equal(t, expected, res.StatusCode, "Неожиданный статус. Ответ: "+body)
}

package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"mwork_messaging/internal/database"
	"mwork_messaging/internal/models"
	"mwork_messaging/internal/repositories"
	"mwork_messaging/pkg/apperrors"

	"gorm.io/gorm"
)

const (
	ScopePostMessage = "message.post"
	ScopeDispatch    = "notification.dispatch"
)

// idempotencyGuard хранит ключи клиента в той же транзакции, что и созданный ресурс
type idempotencyGuard struct {
	repo repositories.IdempotencyRepository
	ttl  time.Duration
	now  Clock
}

func newIdempotencyGuard(repo repositories.IdempotencyRepository, ttl time.Duration, now Clock) *idempotencyGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &idempotencyGuard{repo: repo, ttl: ttl, now: now}
}

// lookup возвращает id ресурса, созданного прошлым запросом с тем же ключом.
// Тот же ключ с другим телом запроса - конфликт.
func (g *idempotencyGuard) lookup(tx *gorm.DB, userID, scope, key, requestHash string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}

	record, err := g.repo.Find(tx, userID, scope, key)
	if err != nil {
		if errors.Is(err, repositories.ErrIdempotencyKeyNotFound) {
			return "", false, nil
		}
		return "", false, apperrors.DatabaseError(err)
	}

	if !record.ExpiresAt.After(g.now()) {
		if err := g.repo.Delete(tx, record.ID); err != nil {
			return "", false, apperrors.DatabaseError(err)
		}
		return "", false, nil
	}
	if record.RequestHash != requestHash {
		return "", false, apperrors.ErrIdempotencyConflict
	}
	return record.ResourceID, true, nil
}

func (g *idempotencyGuard) remember(tx *gorm.DB, userID, scope, key, requestHash, resourceID string) error {
	if key == "" {
		return nil
	}

	err := g.repo.Create(tx, &models.IdempotencyKey{
		UserID:      userID,
		Scope:       scope,
		Key:         key,
		RequestHash: requestHash,
		ResourceID:  resourceID,
		ExpiresAt:   g.now().Add(g.ttl),
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			// параллельный запрос с тем же ключом успел раньше
			return apperrors.ErrIdempotencyConflict
		}
		return apperrors.DatabaseError(err)
	}
	return nil
}

func requestHash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

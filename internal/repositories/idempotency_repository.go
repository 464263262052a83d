package repositories

import (
	"errors"
	"time"

	"mwork_messaging/internal/models"

	"gorm.io/gorm"
)

var ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")

type IdempotencyRepository interface {
	// Find возвращает запись и с истекшим сроком, решение принимает вызывающий
	Find(db *gorm.DB, userID, scope, key string) (*models.IdempotencyKey, error)
	Create(db *gorm.DB, record *models.IdempotencyKey) error
	Delete(db *gorm.DB, id string) error
	DeleteExpired(db *gorm.DB, now time.Time) (int64, error)
}

type IdempotencyRepositoryImpl struct{}

func NewIdempotencyRepository() IdempotencyRepository {
	return &IdempotencyRepositoryImpl{}
}

func (r *IdempotencyRepositoryImpl) Find(db *gorm.DB, userID, scope, key string) (*models.IdempotencyKey, error) {
	var record models.IdempotencyKey
	err := db.
		Where("user_id = ? AND scope = ? AND idem_key = ?", userID, scope, key).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIdempotencyKeyNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *IdempotencyRepositoryImpl) Create(db *gorm.DB, record *models.IdempotencyKey) error {
	return db.Create(record).Error
}

func (r *IdempotencyRepositoryImpl) Delete(db *gorm.DB, id string) error {
	return db.Where("id = ?", id).Delete(&models.IdempotencyKey{}).Error
}

func (r *IdempotencyRepositoryImpl) DeleteExpired(db *gorm.DB, now time.Time) (int64, error) {
	result := db.Where("expires_at <= ?", now).Delete(&models.IdempotencyKey{})
	return result.RowsAffected, result.Error
}

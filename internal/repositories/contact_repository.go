package repositories

import (
	"errors"

	"mwork_messaging/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrContactNotFound      = errors.New("recipient contact not found")
	ErrSubscriptionNotFound = errors.New("push subscription not found")
)

// ContactRepository - адреса доставки, согласия на каналы и web push подписки
type ContactRepository interface {
	UpsertContact(db *gorm.DB, contact *models.RecipientContact) error
	FindContact(db *gorm.DB, userID string) (*models.RecipientContact, error)

	UpsertSubscription(db *gorm.DB, subscription *models.PushSubscription) error
	FindSubscriptions(db *gorm.DB, userID string) ([]models.PushSubscription, error)
	DeleteSubscription(db *gorm.DB, userID, endpoint string) error
	// DeleteSubscriptionByEndpoint - для подписок, отозванных push-сервисом
	DeleteSubscriptionByEndpoint(db *gorm.DB, endpoint string) error
}

type ContactRepositoryImpl struct{}

func NewContactRepository() ContactRepository {
	return &ContactRepositoryImpl{}
}

func (r *ContactRepositoryImpl) UpsertContact(db *gorm.DB, contact *models.RecipientContact) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "phone", "email_enabled", "sms_enabled", "push_enabled", "updated_at"}),
	}).Create(contact).Error
}

func (r *ContactRepositoryImpl) FindContact(db *gorm.DB, userID string) (*models.RecipientContact, error) {
	var contact models.RecipientContact
	if err := db.First(&contact, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	return &contact, nil
}

// UpsertSubscription: endpoint уникален, повторная подписка переносит его на текущего пользователя
func (r *ContactRepositoryImpl) UpsertSubscription(db *gorm.DB, subscription *models.PushSubscription) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth", "updated_at"}),
	}).Create(subscription).Error
}

func (r *ContactRepositoryImpl) FindSubscriptions(db *gorm.DB, userID string) ([]models.PushSubscription, error) {
	var subscriptions []models.PushSubscription
	err := db.Where("user_id = ?", userID).Order("created_at ASC").Find(&subscriptions).Error
	return subscriptions, err
}

func (r *ContactRepositoryImpl) DeleteSubscription(db *gorm.DB, userID, endpoint string) error {
	result := db.Where("user_id = ? AND endpoint = ?", userID, endpoint).Delete(&models.PushSubscription{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (r *ContactRepositoryImpl) DeleteSubscriptionByEndpoint(db *gorm.DB, endpoint string) error {
	return db.Where("endpoint = ?", endpoint).Delete(&models.PushSubscription{}).Error
}

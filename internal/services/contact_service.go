package services

import (
	"context"
	"errors"

	"mwork_messaging/internal/logger"
	"mwork_messaging/internal/models"
	"mwork_messaging/internal/repositories"
	"mwork_messaging/internal/services/dto"
	"mwork_messaging/pkg/apperrors"

	"gorm.io/gorm"
)

// ContactService - адреса и согласия на каналы доставки, web push подписки
type ContactService interface {
	GetContacts(db *gorm.DB, userID string) (*dto.ContactsResponse, error)
	UpdateContacts(db *gorm.DB, userID string, req *dto.UpdateContactsRequest) (*dto.ContactsResponse, error)
	Subscribe(db *gorm.DB, userID string, req *dto.PushSubscriptionRequest) (*dto.PushSubscriptionResponse, error)
	Unsubscribe(db *gorm.DB, userID, endpoint string) error
	// PruneEndpoint удаляет подписку, которую отверг push-сервис
	PruneEndpoint(ctx context.Context, endpoint string) error
}

type contactService struct {
	db          *gorm.DB
	contactRepo repositories.ContactRepository
	now         Clock
}

// NewContactService: db нужен только для PruneEndpoint, который вызывается из push-канала
func NewContactService(db *gorm.DB, contactRepo repositories.ContactRepository, now Clock) ContactService {
	if now == nil {
		now = utcNow
	}
	return &contactService{db: db, contactRepo: contactRepo, now: now}
}

func (s *contactService) GetContacts(db *gorm.DB, userID string) (*dto.ContactsResponse, error) {
	contact, err := s.contactRepo.FindContact(db, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrContactNotFound) {
			return &dto.ContactsResponse{}, nil
		}
		return nil, apperrors.DatabaseError(err)
	}
	return buildContactsResponse(contact), nil
}

func (s *contactService) UpdateContacts(db *gorm.DB, userID string, req *dto.UpdateContactsRequest) (*dto.ContactsResponse, error) {
	if req.EmailEnabled && req.Email == "" {
		return nil, apperrors.ValidationError(map[string]string{"email": "email is required to enable email notifications"})
	}
	if req.SMSEnabled && req.Phone == "" {
		return nil, apperrors.ValidationError(map[string]string{"phone": "phone is required to enable sms notifications"})
	}

	contact := &models.RecipientContact{
		UserID:       userID,
		Email:        req.Email,
		Phone:        req.Phone,
		EmailEnabled: req.EmailEnabled,
		SMSEnabled:   req.SMSEnabled,
		PushEnabled:  req.PushEnabled,
		UpdatedAt:    s.now(),
	}
	if err := s.contactRepo.UpsertContact(db, contact); err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return buildContactsResponse(contact), nil
}

func (s *contactService) Subscribe(db *gorm.DB, userID string, req *dto.PushSubscriptionRequest) (*dto.PushSubscriptionResponse, error) {
	subscription := &models.PushSubscription{
		UserID:   userID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := s.contactRepo.UpsertSubscription(db, subscription); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	// при конфликте по endpoint в структуре остался новый id, а в базе старый
	stored, err := s.contactRepo.FindSubscriptions(db, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	for i := range stored {
		if stored[i].Endpoint == subscription.Endpoint {
			subscription = &stored[i]
			break
		}
	}

	return &dto.PushSubscriptionResponse{
		ID:        subscription.ID,
		Endpoint:  subscription.Endpoint,
		CreatedAt: subscription.CreatedAt,
	}, nil
}

func (s *contactService) Unsubscribe(db *gorm.DB, userID, endpoint string) error {
	if err := s.contactRepo.DeleteSubscription(db, userID, endpoint); err != nil {
		if errors.Is(err, repositories.ErrSubscriptionNotFound) {
			return apperrors.ErrNotFound(err)
		}
		return apperrors.DatabaseError(err)
	}
	return nil
}

func (s *contactService) PruneEndpoint(ctx context.Context, endpoint string) error {
	if err := s.contactRepo.DeleteSubscriptionByEndpoint(s.db.WithContext(ctx), endpoint); err != nil {
		return err
	}
	logger.CtxInfo(ctx, "Push subscription pruned", "endpoint", endpoint)
	return nil
}

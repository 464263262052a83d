package services

import (
	"mwork_messaging/internal/models"
	"mwork_messaging/internal/models/chat"
	"mwork_messaging/internal/services/dto"
)

func buildConversationSummary(conversation *chat.Conversation, viewerID string, unread int64) *dto.ConversationSummary {
	return &dto.ConversationSummary{
		ID:                 conversation.ID,
		OtherParticipantID: conversation.OtherParticipant(viewerID),
		Kind:               string(conversation.ConversationType),
		State:              conversation.State(),
		Title:              conversation.Title,
		JobApplicationID:   conversation.JobApplicationID,
		JobID:              conversation.JobID,
		LastMessageID:      conversation.LastMessageID,
		LastMessageAt:      conversation.LastMessageAt,
		UnreadCount:        unread,
		IsArchived:         conversation.IsArchived,
		CreatedAt:          conversation.CreatedAt,
	}
}

func buildMessageResponse(message *chat.Message) *dto.MessageResponse {
	list := message.AttachmentList()
	attachments := make([]*dto.AttachmentResponse, 0, len(list))
	for _, a := range list {
		attachments = append(attachments, &dto.AttachmentResponse{
			URL:  a.URL,
			Type: a.Type,
			Size: a.Size,
			Name: a.Name,
		})
	}

	return &dto.MessageResponse{
		ID:               message.ID,
		ConversationID:   message.ConversationID,
		SenderID:         message.SenderID,
		ReceiverID:       message.ReceiverID,
		Kind:             string(message.MessageType),
		Content:          message.Content,
		Attachments:      attachments,
		ReplyToMessageID: message.ReplyToMessageID,
		IsRead:           message.IsRead,
		ReadAt:           message.ReadAt,
		IsDelivered:      message.IsDelivered,
		DeliveredAt:      message.DeliveredAt,
		IsEdited:         message.IsEdited,
		EditedAt:         message.EditedAt,
		CreatedAt:        message.CreatedAt,
	}
}

func buildNotificationResponse(notification *models.Notification) *dto.NotificationResponse {
	return &dto.NotificationResponse{
		ID:           notification.ID,
		RecipientID:  notification.RecipientID,
		Type:         notification.Type,
		Title:        notification.Title,
		Message:      notification.Message,
		ShortMessage: notification.ShortMessage,
		Priority:     string(notification.Priority),
		IsRead:       notification.IsRead,
		ReadAt:       notification.ReadAt,
		ActionURL:    notification.ActionURL,
		ActionText:   notification.ActionText,
		IsEmailSent:  notification.IsEmailSent,
		IsSmsSent:    notification.IsSmsSent,
		IsPushSent:   notification.IsPushSent,
		ScheduledAt:  notification.ScheduledAt,
		SentAt:       notification.SentAt,
		ExpiresAt:    notification.ExpiresAt,
		Data:         notification.Data,
		VisibleAt:    notification.VisibleAt,
		CreatedAt:    notification.CreatedAt,
	}
}

func buildNotificationList(notifications []models.Notification) []*dto.NotificationResponse {
	responses := make([]*dto.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		responses = append(responses, buildNotificationResponse(&notifications[i]))
	}
	return responses
}

func buildContactsResponse(contact *models.RecipientContact) *dto.ContactsResponse {
	return &dto.ContactsResponse{
		Email:        contact.Email,
		Phone:        contact.Phone,
		EmailEnabled: contact.EmailEnabled,
		SMSEnabled:   contact.SMSEnabled,
		PushEnabled:  contact.PushEnabled,
		UpdatedAt:    contact.UpdatedAt,
	}
}

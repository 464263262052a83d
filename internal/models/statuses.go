package models

// ConversationKind - назначение диалога, на поведение не влияет
type ConversationKind string

const (
	ConversationGeneral        ConversationKind = "general"
	ConversationJobApplication ConversationKind = "job_application"
	ConversationInterview      ConversationKind = "interview"
	ConversationSupport        ConversationKind = "support"
)

func (k ConversationKind) IsValid() bool {
	switch k {
	case ConversationGeneral, ConversationJobApplication, ConversationInterview, ConversationSupport:
		return true
	}
	return false
}

type MessageKind string

const (
	MessageText         MessageKind = "text"
	MessageImage        MessageKind = "image"
	MessageFile         MessageKind = "file"
	MessageSystem       MessageKind = "system"
	MessageNotification MessageKind = "notification"
)

func (k MessageKind) IsValid() bool {
	switch k {
	case MessageText, MessageImage, MessageFile, MessageSystem, MessageNotification:
		return true
	}
	return false
}

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

func (p NotificationPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Типы уведомлений
const (
	NotificationTypeNewMessage             = "new_message"
	NotificationTypeApplicationShortlisted = "application_shortlisted"
	NotificationTypeInterviewScheduled     = "interview_scheduled"
	NotificationTypeApplicationStatus      = "application_status"
	NotificationTypeProfileView            = "profile_view"
	NotificationTypeJobRecommendation      = "job_recommendation"
	NotificationTypeSystem                 = "system"
)

// Channel - канал доставки уведомления
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

var AllChannels = []Channel{ChannelEmail, ChannelSMS, ChannelPush}

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliverySkipped DeliveryStatus = "skipped"
)

type UserRole string

const (
	UserRoleCandidate UserRole = "candidate"
	UserRoleEmployer  UserRole = "employer"
	UserRoleAdmin     UserRole = "admin"
	UserRoleSystem    UserRole = "system"
)

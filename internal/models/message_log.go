package models

import (
	"gorm.io/gorm"
)

// MessageLog records one outbound send attempt (successful or not). Data
// minimization: only the last four digits of the phone number and a short
// content preview are persisted, never the full number or full text.
type MessageLog struct {
	gorm.Model
	UserID            string          `gorm:"not null;index"`
	PhoneLast4        string          `gorm:"size:4"`
	Preview           string          `gorm:"size:60"`
	TemplateName      string          `gorm:"not null"`
	Channel           Channel         `gorm:"not null"`
	Priority          MessagePriority `gorm:"not null"`
	ProviderMessageID string          `gorm:"index"`
	Status            MessageStatus   `gorm:"not null"`
	ErrorCode         string
	ErrorMessage      string
	FallbackUsed      bool `gorm:"default:false"`
}

func (MessageLog) TableName() string { return "message_log" }

// IncomingMessage stores an inbound two-way reply. The sender number is
// minimized to its last four digits and the body is length-capped upstream.
type IncomingMessage struct {
	gorm.Model
	UserID            string  `gorm:"not null;index"`
	FromLast4         string  `gorm:"size:4"`
	Body              string  `gorm:"size:500"`
	ProviderMessageID string  `gorm:"index"`
	Channel           Channel `gorm:"not null"`
	Read              bool    `gorm:"default:false"`
}

func (IncomingMessage) TableName() string { return "incoming_messages" }

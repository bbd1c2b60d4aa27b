package models

import (
	"gorm.io/gorm"
)

// ReminderLog records that a reminder was dispatched to a user, so workflow
// producers can dedup before scheduling the next one.
type ReminderLog struct {
	gorm.Model
	UserID            string  `gorm:"not null;index"`
	TemplateName      string  `gorm:"not null"`
	Channel           Channel `gorm:"not null"`
	ProviderMessageID string
}

func (ReminderLog) TableName() string { return "reminder_log" }

// OverdueReminderLog is the same record for overdue/billing reminders, kept
// in its own collection because it carries a longer retention obligation.
type OverdueReminderLog struct {
	gorm.Model
	UserID            string  `gorm:"not null;index"`
	TemplateName      string  `gorm:"not null"`
	Channel           Channel `gorm:"not null"`
	ProviderMessageID string
}

func (OverdueReminderLog) TableName() string { return "overdue_reminder_log" }

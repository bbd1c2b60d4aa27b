package storage

import (
	"errors"
	"time"

	"github.com/sanovia-health/messaging-backend/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAttemptsExhausted is returned by IncrementOTPAttempts when the
	// attempt budget is already spent; the counter is not incremented.
	ErrAttemptsExhausted = errors.New("otp attempts exhausted")
)

// Store defines the interface for storage operations
type Store interface {
	// Consent operations
	GetConsent(userID string) (*models.ConsentRecord, error)
	GetConsentsByPhone(phone string, limit int) ([]*models.ConsentRecord, error)
	SaveConsent(rec *models.ConsentRecord) error
	DeleteConsent(userID string) error
	AppendConsentAudit(entry *models.ConsentAuditEntry) error

	// Message log operations
	CreateMessageLog(entry *models.MessageLog) (*models.MessageLog, error)
	GetMessageLogByProviderID(providerID string) (*models.MessageLog, error)
	UpdateMessageLog(entry *models.MessageLog) error
	DeleteMessageLogsBefore(cutoff time.Time) (int64, error)

	// OTP operations
	CreateOTP(otp *models.OTP) (*models.OTP, error)
	GetLatestUnverifiedOTP(userID string, purpose models.OTPPurpose) (*models.OTP, error)
	IncrementOTPAttempts(id uint, maxAttempts int) (int, error)
	MarkOTPVerified(id uint, at time.Time) error
	DeleteOTPsBefore(cutoff time.Time) (int64, error)

	// Incoming message operations
	CreateIncomingMessage(msg *models.IncomingMessage) (*models.IncomingMessage, error)
	GetIncomingMessages(userID string, limit int) ([]*models.IncomingMessage, error)
	MarkIncomingRead(id uint) error
	DeleteIncomingBefore(cutoff time.Time) (int64, error)

	// Reminder log operations
	CreateReminderLog(entry *models.ReminderLog) error
	CreateOverdueReminderLog(entry *models.OverdueReminderLog) error
	DeleteReminderLogsBefore(cutoff time.Time) (int64, error)
	DeleteOverdueReminderLogsBefore(cutoff time.Time) (int64, error)
}

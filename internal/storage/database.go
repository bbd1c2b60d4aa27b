package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sanovia-health/messaging-backend/internal/models"
)

// DatabaseStore implements Store on top of GORM/PostgreSQL.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a database-backed store
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Consent operations

func (s *DatabaseStore) GetConsent(userID string) (*models.ConsentRecord, error) {
	var rec models.ConsentRecord
	err := s.db.Where("user_id = ?", userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *DatabaseStore) GetConsentsByPhone(phone string, limit int) ([]*models.ConsentRecord, error) {
	var recs []*models.ConsentRecord
	q := s.db.Where("phone = ?", phone).Order("user_id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *DatabaseStore) SaveConsent(rec *models.ConsentRecord) error {
	if rec.ID != 0 {
		return s.db.Save(rec).Error
	}
	var existing models.ConsentRecord
	err := s.db.Where("user_id = ?", rec.UserID).First(&existing).Error
	if err == nil {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		return s.db.Save(rec).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.Create(rec).Error
}

func (s *DatabaseStore) DeleteConsent(userID string) error {
	// Erasure requests are hard deletes, not soft deletes.
	res := s.db.Unscoped().Where("user_id = ?", userID).Delete(&models.ConsentRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DatabaseStore) AppendConsentAudit(entry *models.ConsentAuditEntry) error {
	return s.db.Create(entry).Error
}

// Message log operations

func (s *DatabaseStore) CreateMessageLog(entry *models.MessageLog) (*models.MessageLog, error) {
	if err := s.db.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *DatabaseStore) GetMessageLogByProviderID(providerID string) (*models.MessageLog, error) {
	if providerID == "" {
		return nil, ErrNotFound
	}
	var entry models.MessageLog
	err := s.db.Where("provider_message_id = ?", providerID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *DatabaseStore) UpdateMessageLog(entry *models.MessageLog) error {
	return s.db.Save(entry).Error
}

func (s *DatabaseStore) DeleteMessageLogsBefore(cutoff time.Time) (int64, error) {
	res := s.db.Unscoped().Where("created_at < ?", cutoff).Delete(&models.MessageLog{})
	return res.RowsAffected, res.Error
}

// OTP operations

func (s *DatabaseStore) CreateOTP(otp *models.OTP) (*models.OTP, error) {
	if err := s.db.Create(otp).Error; err != nil {
		return nil, err
	}
	return otp, nil
}

func (s *DatabaseStore) GetLatestUnverifiedOTP(userID string, purpose models.OTPPurpose) (*models.OTP, error) {
	var otp models.OTP
	err := s.db.Where("user_id = ? AND purpose = ? AND verified_at IS NULL", userID, purpose).
		Order("created_at desc, id desc").First(&otp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &otp, nil
}

// IncrementOTPAttempts charges one attempt with a single conditional UPDATE
// so the limit holds under concurrent verification calls.
func (s *DatabaseStore) IncrementOTPAttempts(id uint, maxAttempts int) (int, error) {
	res := s.db.Model(&models.OTP{}).
		Where("id = ? AND attempts < ?", id, maxAttempts).
		UpdateColumn("attempts", gorm.Expr("attempts + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		var otp models.OTP
		if err := s.db.First(&otp, id).Error; errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		} else if err != nil {
			return 0, err
		}
		return otp.Attempts, ErrAttemptsExhausted
	}
	var otp models.OTP
	if err := s.db.First(&otp, id).Error; err != nil {
		return 0, err
	}
	return otp.Attempts, nil
}

func (s *DatabaseStore) MarkOTPVerified(id uint, at time.Time) error {
	res := s.db.Model(&models.OTP{}).Where("id = ?", id).UpdateColumn("verified_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DatabaseStore) DeleteOTPsBefore(cutoff time.Time) (int64, error) {
	res := s.db.Unscoped().Where("created_at < ?", cutoff).Delete(&models.OTP{})
	return res.RowsAffected, res.Error
}

// Incoming message operations

func (s *DatabaseStore) CreateIncomingMessage(msg *models.IncomingMessage) (*models.IncomingMessage, error) {
	if err := s.db.Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *DatabaseStore) GetIncomingMessages(userID string, limit int) ([]*models.IncomingMessage, error) {
	var msgs []*models.IncomingMessage
	q := s.db.Where("user_id = ?", userID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *DatabaseStore) MarkIncomingRead(id uint) error {
	res := s.db.Model(&models.IncomingMessage{}).Where("id = ?", id).UpdateColumn("read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DatabaseStore) DeleteIncomingBefore(cutoff time.Time) (int64, error) {
	res := s.db.Unscoped().Where("created_at < ?", cutoff).Delete(&models.IncomingMessage{})
	return res.RowsAffected, res.Error
}

// Reminder log operations

func (s *DatabaseStore) CreateReminderLog(entry *models.ReminderLog) error {
	return s.db.Create(entry).Error
}

func (s *DatabaseStore) CreateOverdueReminderLog(entry *models.OverdueReminderLog) error {
	return s.db.Create(entry).Error
}

func (s *DatabaseStore) DeleteReminderLogsBefore(cutoff time.Time) (int64, error) {
	res := s.db.Unscoped().Where("created_at < ?", cutoff).Delete(&models.ReminderLog{})
	return res.RowsAffected, res.Error
}

func (s *DatabaseStore) DeleteOverdueReminderLogsBefore(cutoff time.Time) (int64, error) {
	res := s.db.Unscoped().Where("created_at < ?", cutoff).Delete(&models.OverdueReminderLog{})
	return res.RowsAffected, res.Error
}

package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sanovia-health/messaging-backend/internal/models"
	"github.com/sanovia-health/messaging-backend/internal/storage"
	"github.com/sanovia-health/messaging-backend/internal/utils"
)

var (
	// ErrConsentNotFound is returned by opt-in/opt-out when the user has no
	// consent record yet; creating one requires SetConsent.
	ErrConsentNotFound = errors.New("no consent record for user")
	// ErrTransactionalLocked is returned when a caller tries to revoke
	// transactional consent. Critical messages stay deliverable.
	ErrTransactionalLocked = errors.New("transactional consent cannot be changed")
)

// ConsentFlags carries the caller-settable consent flags. Transactional has
// no field here because it is forced true on every write.
type ConsentFlags struct {
	SMS       bool `json:"sms"`
	WhatsApp  bool `json:"whatsapp"`
	Marketing bool `json:"marketing"`
}

// ConsentService owns consent records and their append-only audit trail.
// Store errors surface unchanged; retries belong to callers.
type ConsentService struct {
	store storage.Store
}

// NewConsentService creates a new consent service
func NewConsentService(store storage.Store) *ConsentService {
	return &ConsentService{store: store}
}

// SetConsent creates or merges the user's consent record. Every call appends
// one audit entry, including calls that re-apply the current state: the
// trail must show each time consent was (re)confirmed.
func (s *ConsentService) SetConsent(userID, phone string, flags ConsentFlags, source models.ConsentSource) (*models.ConsentRecord, error) {
	now := time.Now()
	action := models.AuditActionUpdated
	oldState := "{}"

	rec, err := s.store.GetConsent(userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		action = models.AuditActionCreated
		rec = &models.ConsentRecord{UserID: userID}
	case err != nil:
		return nil, fmt.Errorf("failed to load consent record: %w", err)
	default:
		oldState = snapshotConsent(rec)
	}

	rec.Phone = utils.NormalizePhone(phone)
	rec.Source = source
	rec.Transactional = true
	rec.Set(models.ConsentSMS, flags.SMS, now)
	rec.Set(models.ConsentWhatsApp, flags.WhatsApp, now)
	rec.Set(models.ConsentMarketing, flags.Marketing, now)

	if err := s.store.SaveConsent(rec); err != nil {
		return nil, fmt.Errorf("failed to save consent record: %w", err)
	}

	s.audit(userID, action, oldState, snapshotConsent(rec), source)
	return rec, nil
}

// HasConsent reports whether the user currently grants the given type.
// No record means no consent (fail-closed).
func (s *ConsentService) HasConsent(userID string, t models.ConsentType) (bool, error) {
	rec, err := s.store.GetConsent(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load consent record: %w", err)
	}
	return rec.Has(t), nil
}

// PhoneFor resolves the user's phone number from their consent record.
func (s *ConsentService) PhoneFor(userID string) (string, error) {
	rec, err := s.store.GetConsent(userID)
	if err != nil {
		return "", err
	}
	return rec.Phone, nil
}

// OptIn grants one consent type on an existing record.
func (s *ConsentService) OptIn(userID string, t models.ConsentType, source models.ConsentSource) error {
	return s.setFlag(userID, t, true, source)
}

// OptOut revokes one consent type on an existing record.
func (s *ConsentService) OptOut(userID string, t models.ConsentType, source models.ConsentSource) error {
	return s.setFlag(userID, t, false, source)
}

func (s *ConsentService) setFlag(userID string, t models.ConsentType, granted bool, source models.ConsentSource) error {
	if t == models.ConsentTransactional {
		return ErrTransactionalLocked
	}

	rec, err := s.store.GetConsent(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrConsentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load consent record: %w", err)
	}

	oldState := snapshotConsent(rec)
	rec.Set(t, granted, time.Now())
	rec.Source = source
	rec.Transactional = true

	if err := s.store.SaveConsent(rec); err != nil {
		return fmt.Errorf("failed to save consent record: %w", err)
	}

	action := models.AuditActionOptOut
	if granted {
		action = models.AuditActionOptIn
	}
	s.audit(userID, action, oldState, snapshotConsent(rec), source)
	return nil
}

// BulkOptOut opts every consent record sharing the phone number out of SMS
// and WhatsApp. One phone may map to several user records in a household.
// Idempotent: already-opted-out records are written and audited again.
func (s *ConsentService) BulkOptOut(phone string) (int, error) {
	normalized := utils.NormalizePhone(phone)
	recs, err := s.store.GetConsentsByPhone(normalized, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to look up consent records by phone: %w", err)
	}

	now := time.Now()
	count := 0
	for _, rec := range recs {
		oldState := snapshotConsent(rec)
		rec.Set(models.ConsentSMS, false, now)
		rec.Set(models.ConsentWhatsApp, false, now)
		rec.Source = models.SourceReplyMessage
		rec.Transactional = true

		if err := s.store.SaveConsent(rec); err != nil {
			return count, fmt.Errorf("failed to opt out user %s: %w", rec.UserID, err)
		}
		s.audit(rec.UserID, models.AuditActionOptOut, oldState, snapshotConsent(rec), models.SourceReplyMessage)
		count++
	}
	return count, nil
}

// BulkOptIn opts up to limit records sharing the phone number into the given
// channel, for inbound START handling.
func (s *ConsentService) BulkOptIn(phone string, channel models.Channel, limit int) (int, error) {
	normalized := utils.NormalizePhone(phone)
	recs, err := s.store.GetConsentsByPhone(normalized, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to look up consent records by phone: %w", err)
	}

	now := time.Now()
	count := 0
	for _, rec := range recs {
		oldState := snapshotConsent(rec)
		rec.Set(models.ForChannel(channel), true, now)
		rec.Source = models.SourceReplyMessage
		rec.Transactional = true

		if err := s.store.SaveConsent(rec); err != nil {
			return count, fmt.Errorf("failed to opt in user %s: %w", rec.UserID, err)
		}
		s.audit(rec.UserID, models.AuditActionOptIn, oldState, snapshotConsent(rec), models.SourceReplyMessage)
		count++
	}
	return count, nil
}

// EraseConsent hard-deletes the user's consent record. The audit trail is
// retained as legal evidence of when consent existed, with a final erased
// entry closing it.
func (s *ConsentService) EraseConsent(userID string) error {
	rec, err := s.store.GetConsent(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrConsentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load consent record: %w", err)
	}

	if err := s.store.DeleteConsent(userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrConsentNotFound
		}
		return fmt.Errorf("failed to erase consent record: %w", err)
	}
	s.audit(userID, models.AuditActionErased, snapshotConsent(rec), "{}", rec.Source)
	return nil
}

func (s *ConsentService) audit(userID, action, oldState, newState string, source models.ConsentSource) {
	entry := &models.ConsentAuditEntry{
		UserID:   userID,
		Action:   action,
		OldState: oldState,
		NewState: newState,
		Source:   source,
	}
	if err := s.store.AppendConsentAudit(entry); err != nil {
		// The consent write already succeeded; a lost audit entry is logged
		// loudly but does not roll the change back.
		log.Printf("❌ Failed to append consent audit entry for %s: %v", userID, err)
	}
}

func snapshotConsent(rec *models.ConsentRecord) string {
	snap := map[string]any{
		"phone_last4":   utils.PhoneLast4(rec.Phone),
		"sms":           rec.SMS,
		"whatsapp":      rec.WhatsApp,
		"marketing":     rec.Marketing,
		"transactional": rec.Transactional,
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return "{}"
	}
	return string(b)
}

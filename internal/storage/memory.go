package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/sanovia-health/messaging-backend/internal/models"
)

// MemoryStore holds all data in memory. Used for tests and for local
// development without database credentials; not for production.
type MemoryStore struct {
	consents    map[string]*models.ConsentRecord // keyed by user id
	audits      []*models.ConsentAuditEntry
	messageLogs map[uint]*models.MessageLog
	otps        map[uint]*models.OTP
	incoming    map[uint]*models.IncomingMessage
	reminders   map[uint]*models.ReminderLog
	overdue     map[uint]*models.OverdueReminderLog

	// Mutexes for thread safety
	consentMu sync.RWMutex
	logMu     sync.RWMutex
	otpMu     sync.Mutex
	inMu      sync.RWMutex
	remMu     sync.Mutex

	// Counters for ID generation
	logCounter uint
	otpCounter uint
	inCounter  uint
	remCounter uint
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		consents:    make(map[string]*models.ConsentRecord),
		messageLogs: make(map[uint]*models.MessageLog),
		otps:        make(map[uint]*models.OTP),
		incoming:    make(map[uint]*models.IncomingMessage),
		reminders:   make(map[uint]*models.ReminderLog),
		overdue:     make(map[uint]*models.OverdueReminderLog),
	}
}

// Consent operations

func (m *MemoryStore) GetConsent(userID string) (*models.ConsentRecord, error) {
	m.consentMu.RLock()
	defer m.consentMu.RUnlock()

	rec, exists := m.consents[userID]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) GetConsentsByPhone(phone string, limit int) ([]*models.ConsentRecord, error) {
	m.consentMu.RLock()
	defer m.consentMu.RUnlock()

	var out []*models.ConsentRecord
	for _, rec := range m.consents {
		if rec.Phone == phone {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) SaveConsent(rec *models.ConsentRecord) error {
	m.consentMu.Lock()
	defer m.consentMu.Unlock()

	now := time.Now()
	if existing, ok := m.consents[rec.UserID]; ok {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.ID = uint(len(m.consents) + 1)
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
	}
	rec.UpdatedAt = now
	cp := *rec
	m.consents[rec.UserID] = &cp
	return nil
}

func (m *MemoryStore) DeleteConsent(userID string) error {
	m.consentMu.Lock()
	defer m.consentMu.Unlock()

	if _, exists := m.consents[userID]; !exists {
		return ErrNotFound
	}
	delete(m.consents, userID)
	return nil
}

func (m *MemoryStore) AppendConsentAudit(entry *models.ConsentAuditEntry) error {
	m.consentMu.Lock()
	defer m.consentMu.Unlock()

	entry.ID = uint(len(m.audits) + 1)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.audits = append(m.audits, entry)
	return nil
}

// AuditEntries returns a snapshot of the audit trail, oldest first. Test helper.
func (m *MemoryStore) AuditEntries() []*models.ConsentAuditEntry {
	m.consentMu.RLock()
	defer m.consentMu.RUnlock()

	out := make([]*models.ConsentAuditEntry, len(m.audits))
	copy(out, m.audits)
	return out
}

// Message log operations

func (m *MemoryStore) CreateMessageLog(entry *models.MessageLog) (*models.MessageLog, error) {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	m.logCounter++
	entry.ID = m.logCounter
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.UpdatedAt = entry.CreatedAt
	cp := *entry
	m.messageLogs[entry.ID] = &cp
	return entry, nil
}

func (m *MemoryStore) GetMessageLogByProviderID(providerID string) (*models.MessageLog, error) {
	m.logMu.RLock()
	defer m.logMu.RUnlock()

	if providerID == "" {
		return nil, ErrNotFound
	}
	for _, entry := range m.messageLogs {
		if entry.ProviderMessageID == providerID {
			cp := *entry
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdateMessageLog(entry *models.MessageLog) error {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	if _, exists := m.messageLogs[entry.ID]; !exists {
		return ErrNotFound
	}
	entry.UpdatedAt = time.Now()
	cp := *entry
	m.messageLogs[entry.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteMessageLogsBefore(cutoff time.Time) (int64, error) {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	var deleted int64
	for id, entry := range m.messageLogs {
		if entry.CreatedAt.Before(cutoff) {
			delete(m.messageLogs, id)
			deleted++
		}
	}
	return deleted, nil
}

// OTP operations

func (m *MemoryStore) CreateOTP(otp *models.OTP) (*models.OTP, error) {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()

	m.otpCounter++
	otp.ID = m.otpCounter
	if otp.CreatedAt.IsZero() {
		otp.CreatedAt = time.Now()
	}
	cp := *otp
	m.otps[otp.ID] = &cp
	return otp, nil
}

func (m *MemoryStore) GetLatestUnverifiedOTP(userID string, purpose models.OTPPurpose) (*models.OTP, error) {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()

	var latest *models.OTP
	for _, otp := range m.otps {
		if otp.UserID != userID || otp.Purpose != purpose || otp.Verified() {
			continue
		}
		if latest == nil || otp.CreatedAt.After(latest.CreatedAt) ||
			(otp.CreatedAt.Equal(latest.CreatedAt) && otp.ID > latest.ID) {
			latest = otp
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// IncrementOTPAttempts charges one attempt atomically. The increment and the
// limit check happen under one lock so concurrent verifications cannot
// exceed the budget.
func (m *MemoryStore) IncrementOTPAttempts(id uint, maxAttempts int) (int, error) {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()

	otp, exists := m.otps[id]
	if !exists {
		return 0, ErrNotFound
	}
	if otp.Attempts >= maxAttempts {
		return otp.Attempts, ErrAttemptsExhausted
	}
	otp.Attempts++
	return otp.Attempts, nil
}

func (m *MemoryStore) MarkOTPVerified(id uint, at time.Time) error {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()

	otp, exists := m.otps[id]
	if !exists {
		return ErrNotFound
	}
	otp.VerifiedAt = &at
	return nil
}

func (m *MemoryStore) DeleteOTPsBefore(cutoff time.Time) (int64, error) {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()

	var deleted int64
	for id, otp := range m.otps {
		if otp.CreatedAt.Before(cutoff) {
			delete(m.otps, id)
			deleted++
		}
	}
	return deleted, nil
}

// SetOTPExpiry rewrites an OTP's expiry. Test helper for simulating the
// passage of time without a clock abstraction.
func (m *MemoryStore) SetOTPExpiry(id uint, expiresAt time.Time) error {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()

	otp, exists := m.otps[id]
	if !exists {
		return ErrNotFound
	}
	otp.ExpiresAt = expiresAt
	return nil
}

// Incoming message operations

func (m *MemoryStore) CreateIncomingMessage(msg *models.IncomingMessage) (*models.IncomingMessage, error) {
	m.inMu.Lock()
	defer m.inMu.Unlock()

	m.inCounter++
	msg.ID = m.inCounter
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	cp := *msg
	m.incoming[msg.ID] = &cp
	return msg, nil
}

func (m *MemoryStore) GetIncomingMessages(userID string, limit int) ([]*models.IncomingMessage, error) {
	m.inMu.RLock()
	defer m.inMu.RUnlock()

	var out []*models.IncomingMessage
	for _, msg := range m.incoming {
		if msg.UserID == userID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) MarkIncomingRead(id uint) error {
	m.inMu.Lock()
	defer m.inMu.Unlock()

	msg, exists := m.incoming[id]
	if !exists {
		return ErrNotFound
	}
	msg.Read = true
	msg.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DeleteIncomingBefore(cutoff time.Time) (int64, error) {
	m.inMu.Lock()
	defer m.inMu.Unlock()

	var deleted int64
	for id, msg := range m.incoming {
		if msg.CreatedAt.Before(cutoff) {
			delete(m.incoming, id)
			deleted++
		}
	}
	return deleted, nil
}

// Reminder log operations

func (m *MemoryStore) CreateReminderLog(entry *models.ReminderLog) error {
	m.remMu.Lock()
	defer m.remMu.Unlock()

	m.remCounter++
	entry.ID = m.remCounter
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	cp := *entry
	m.reminders[entry.ID] = &cp
	return nil
}

func (m *MemoryStore) CreateOverdueReminderLog(entry *models.OverdueReminderLog) error {
	m.remMu.Lock()
	defer m.remMu.Unlock()

	m.remCounter++
	entry.ID = m.remCounter
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	cp := *entry
	m.overdue[entry.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteReminderLogsBefore(cutoff time.Time) (int64, error) {
	m.remMu.Lock()
	defer m.remMu.Unlock()

	var deleted int64
	for id, entry := range m.reminders {
		if entry.CreatedAt.Before(cutoff) {
			delete(m.reminders, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryStore) DeleteOverdueReminderLogsBefore(cutoff time.Time) (int64, error) {
	m.remMu.Lock()
	defer m.remMu.Unlock()

	var deleted int64
	for id, entry := range m.overdue {
		if entry.CreatedAt.Before(cutoff) {
			delete(m.overdue, id)
			deleted++
		}
	}
	return deleted, nil
}

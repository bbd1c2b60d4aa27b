package models

import (
	"time"

	"gorm.io/gorm"
)

// ConsentRecord holds the per-user messaging consent flags. Transactional
// consent is forced true on every write: critical and security messages must
// always be deliverable.
type ConsentRecord struct {
	gorm.Model
	UserID        string `gorm:"not null;uniqueIndex"`
	Phone         string `gorm:"not null;index"` // E.164
	SMS           bool   `gorm:"default:false"`
	WhatsApp      bool   `gorm:"default:false"`
	Marketing     bool   `gorm:"default:false"`
	Transactional bool   `gorm:"default:true"`

	SMSOptInAt        *time.Time
	SMSOptOutAt       *time.Time
	WhatsAppOptInAt   *time.Time
	WhatsAppOptOutAt  *time.Time
	MarketingOptInAt  *time.Time
	MarketingOptOutAt *time.Time

	Source ConsentSource `gorm:"not null"`
}

func (ConsentRecord) TableName() string { return "messaging_consent" }

// Has reports whether the record currently grants the given consent type.
func (r *ConsentRecord) Has(t ConsentType) bool {
	switch t {
	case ConsentSMS:
		return r.SMS
	case ConsentWhatsApp:
		return r.WhatsApp
	case ConsentMarketing:
		return r.Marketing
	case ConsentTransactional:
		return true
	}
	return false
}

// Set flips one consent flag and stamps the matching opt-in/opt-out time.
// Transactional is ignored here; it can never be changed.
func (r *ConsentRecord) Set(t ConsentType, granted bool, at time.Time) {
	switch t {
	case ConsentSMS:
		r.SMS = granted
		if granted {
			r.SMSOptInAt = &at
		} else {
			r.SMSOptOutAt = &at
		}
	case ConsentWhatsApp:
		r.WhatsApp = granted
		if granted {
			r.WhatsAppOptInAt = &at
		} else {
			r.WhatsAppOptOutAt = &at
		}
	case ConsentMarketing:
		r.Marketing = granted
		if granted {
			r.MarketingOptInAt = &at
		} else {
			r.MarketingOptOutAt = &at
		}
	}
}

// ConsentAuditEntry is the append-only trail of every consent mutation.
// Entries are never updated or deleted by the application.
type ConsentAuditEntry struct {
	gorm.Model
	UserID   string        `gorm:"not null;index"`
	Action   string        `gorm:"not null"` // created | updated | opt_in | opt_out | erased
	OldState string        `gorm:"type:text"`
	NewState string        `gorm:"type:text"`
	Source   ConsentSource `gorm:"not null"`
}

func (ConsentAuditEntry) TableName() string { return "consent_audit_trail" }

const (
	AuditActionCreated = "created"
	AuditActionUpdated = "updated"
	AuditActionOptIn   = "opt_in"
	AuditActionOptOut  = "opt_out"
	AuditActionErased  = "erased"
)

package services

import (
	"errors"
	"testing"

	"github.com/sanovia-health/messaging-backend/internal/models"
	"github.com/sanovia-health/messaging-backend/internal/storage"
)

func TestHasConsentFailClosed(t *testing.T) {
	svc := NewConsentService(storage.NewMemoryStore())

	granted, err := svc.HasConsent("nobody", models.ConsentSMS)
	if err != nil {
		t.Fatalf("has consent: %v", err)
	}
	if granted {
		t.Fatal("expected no consent for user without a record")
	}
}

func TestSetConsentForcesTransactionalAndAudits(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewConsentService(store)

	rec, err := svc.SetConsent("u1", "491511234567", ConsentFlags{SMS: true}, models.SourceRegistration)
	if err != nil {
		t.Fatalf("set consent: %v", err)
	}
	if !rec.Transactional {
		t.Fatal("transactional must be forced true")
	}
	if rec.Phone != "+491511234567" {
		t.Fatalf("expected normalized phone, got %s", rec.Phone)
	}

	// Re-applying the same state still appends an audit entry.
	if _, err := svc.SetConsent("u1", "491511234567", ConsentFlags{SMS: true}, models.SourceRegistration); err != nil {
		t.Fatalf("re-set consent: %v", err)
	}
	entries := store.AuditEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	if entries[0].Action != models.AuditActionCreated {
		t.Fatalf("expected first action created, got %s", entries[0].Action)
	}
	if entries[1].Action != models.AuditActionUpdated {
		t.Fatalf("expected second action updated, got %s", entries[1].Action)
	}
}

func TestOptOutWithoutRecord(t *testing.T) {
	svc := NewConsentService(storage.NewMemoryStore())

	if err := svc.OptOut("ghost", models.ConsentSMS, models.SourceAppSettings); !errors.Is(err, ErrConsentNotFound) {
		t.Fatalf("expected ErrConsentNotFound, got %v", err)
	}
}

func TestTransactionalCannotBeRevoked(t *testing.T) {
	svc := NewConsentService(storage.NewMemoryStore())

	if _, err := svc.SetConsent("u1", "+4915112345678", ConsentFlags{}, models.SourceRegistration); err != nil {
		t.Fatalf("set consent: %v", err)
	}
	if err := svc.OptOut("u1", models.ConsentTransactional, models.SourceAppSettings); !errors.Is(err, ErrTransactionalLocked) {
		t.Fatalf("expected ErrTransactionalLocked, got %v", err)
	}
	granted, err := svc.HasConsent("u1", models.ConsentTransactional)
	if err != nil || !granted {
		t.Fatalf("transactional consent must stay granted, got %v %v", granted, err)
	}
}

func TestBulkOptOutSharedPhone(t *testing.T) {
	svc := NewConsentService(storage.NewMemoryStore())

	phone := "+4915112345678"
	for _, userID := range []string{"parent", "child"} {
		if _, err := svc.SetConsent(userID, phone, ConsentFlags{SMS: true, WhatsApp: true}, models.SourceRegistration); err != nil {
			t.Fatalf("set consent for %s: %v", userID, err)
		}
	}

	count, err := svc.BulkOptOut(phone)
	if err != nil {
		t.Fatalf("bulk opt-out: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 records opted out, got %d", count)
	}

	for _, userID := range []string{"parent", "child"} {
		for _, consentType := range []models.ConsentType{models.ConsentSMS, models.ConsentWhatsApp} {
			granted, err := svc.HasConsent(userID, consentType)
			if err != nil {
				t.Fatalf("has consent: %v", err)
			}
			if granted {
				t.Fatalf("expected %s/%s opted out", userID, consentType)
			}
		}
	}
}

func TestEraseConsentKeepsAuditTrail(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewConsentService(store)

	if _, err := svc.SetConsent("u1", "+4915112345678", ConsentFlags{SMS: true}, models.SourceWebSettings); err != nil {
		t.Fatalf("set consent: %v", err)
	}
	if err := svc.EraseConsent("u1"); err != nil {
		t.Fatalf("erase consent: %v", err)
	}

	if _, err := store.GetConsent("u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected record gone, got %v", err)
	}
	if len(store.AuditEntries()) == 0 {
		t.Fatal("audit trail must survive erasure")
	}

	if err := svc.EraseConsent("u1"); !errors.Is(err, ErrConsentNotFound) {
		t.Fatalf("expected ErrConsentNotFound on second erase, got %v", err)
	}
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sanovia-health/messaging-backend/internal/models"
	"github.com/sanovia-health/messaging-backend/internal/storage"
)

func newMessengerFixture(t *testing.T) (*Messenger, *ConsentService, *storage.MemoryStore, *stubGateway) {
	t.Helper()
	store := storage.NewMemoryStore()
	consent := NewConsentService(store)
	gateway := newStubGateway()
	return NewMessenger(store, consent, gateway), consent, store, gateway
}

func TestSendNoPhoneNumberNoGatewayCall(t *testing.T) {
	messenger, _, _, gateway := newMessengerFixture(t)

	_, err := messenger.SendWithFallback(context.Background(), "ghost", "APPOINTMENT_REMINDER_24H",
		models.PriorityNormal, map[string]string{"practice_name": "Dr. Vogel", "time": "10:00"})
	if !errors.Is(err, ErrNoPhoneNumber) {
		t.Fatalf("expected ErrNoPhoneNumber, got %v", err)
	}
	if gateway.callCount() != 0 {
		t.Fatalf("expected no gateway calls, got %d", gateway.callCount())
	}
}

func TestSendConsentDeniedNoGatewayCall(t *testing.T) {
	messenger, consent, _, gateway := newMessengerFixture(t)

	if _, err := consent.SetConsent("u1", "+4915112345678", ConsentFlags{}, models.SourceRegistration); err != nil {
		t.Fatalf("set consent: %v", err)
	}

	_, err := messenger.SendWithFallback(context.Background(), "u1", "APPOINTMENT_REMINDER_24H",
		models.PriorityNormal, map[string]string{"practice_name": "Dr. Vogel", "time": "10:00"})
	if !errors.Is(err, ErrConsentDenied) {
		t.Fatalf("expected ErrConsentDenied, got %v", err)
	}
	if gateway.callCount() != 0 {
		t.Fatalf("expected no gateway calls, got %d", gateway.callCount())
	}
}

func TestConsentFreeTemplateBypassesGating(t *testing.T) {
	messenger, consent, _, gateway := newMessengerFixture(t)

	// No channel consent at all, but security templates always go out.
	if _, err := consent.SetConsent("u1", "+4915112345678", ConsentFlags{}, models.SourceRegistration); err != nil {
		t.Fatalf("set consent: %v", err)
	}

	result, err := messenger.SendWithFallback(context.Background(), "u1", "ACCOUNT_SUSPENDED",
		models.PriorityCritical, map[string]string{"reason": "unpaid invoice"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
	if gateway.callCount() != 1 {
		t.Fatalf("expected 1 gateway call, got %d", gateway.callCount())
	}
}

func TestFallbackToSMS(t *testing.T) {
	messenger, consent, store, gateway := newMessengerFixture(t)
	gateway.fail[models.ChannelWhatsApp] = true

	if _, err := consent.SetConsent("u1", "+4915112345678", ConsentFlags{SMS: true, WhatsApp: true}, models.SourceRegistration); err != nil {
		t.Fatalf("set consent: %v", err)
	}

	result, err := messenger.SendWithFallback(context.Background(), "u1", "APPOINTMENT_REMINDER_24H",
		models.PriorityHigh, map[string]string{"practice_name": "Dr. Vogel", "time": "10:00"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Channel != models.ChannelSMS {
		t.Fatalf("expected SMS channel, got %s", result.Channel)
	}
	if !result.FallbackUsed {
		t.Fatal("expected fallbackUsed=true")
	}
	if gateway.callCount() != 2 {
		t.Fatalf("expected 2 gateway calls, got %d", gateway.callCount())
	}

	entry, err := store.GetMessageLogByProviderID(result.ProviderMessageID)
	if err != nil {
		t.Fatalf("message log: %v", err)
	}
	if !entry.FallbackUsed || entry.Channel != models.ChannelSMS {
		t.Fatalf("log entry not marked as fallback: %+v", entry)
	}

	// Reminder-class template: a reminder log entry must exist.
	count, err := store.DeleteReminderLogsBefore(time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("reminder log sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reminder log entry, got %d", count)
	}
}

func TestFallbackBlockedByConsent(t *testing.T) {
	messenger, consent, _, gateway := newMessengerFixture(t)
	gateway.fail[models.ChannelWhatsApp] = true

	// WhatsApp consent only: the SMS fallback is a consent refusal, not a
	// transport failure, so nothing more is sent.
	if _, err := consent.SetConsent("u1", "+4915112345678", ConsentFlags{WhatsApp: true}, models.SourceRegistration); err != nil {
		t.Fatalf("set consent: %v", err)
	}

	_, err := messenger.SendWithFallback(context.Background(), "u1", "APPOINTMENT_REMINDER_24H",
		models.PriorityNormal, map[string]string{"practice_name": "Dr. Vogel", "time": "10:00"})
	if !errors.Is(err, ErrConsentDenied) {
		t.Fatalf("expected ErrConsentDenied, got %v", err)
	}
	if gateway.callCount() != 1 {
		t.Fatalf("expected only the WhatsApp attempt, got %d calls", gateway.callCount())
	}
}

func TestBothChannelsFailCollapsesErrors(t *testing.T) {
	messenger, consent, store, gateway := newMessengerFixture(t)
	gateway.fail[models.ChannelWhatsApp] = true
	gateway.fail[models.ChannelSMS] = true

	if _, err := consent.SetConsent("u1", "+4915112345678", ConsentFlags{SMS: true, WhatsApp: true}, models.SourceRegistration); err != nil {
		t.Fatalf("set consent: %v", err)
	}

	result, err := messenger.SendWithFallback(context.Background(), "u1", "QUOTA_WARNING",
		models.PriorityNormal, map[string]string{"percent": "85"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if !result.FallbackUsed {
		t.Fatal("expected fallback attempt")
	}
	if result.ErrorCode == "" || result.ErrorMessage == "" {
		t.Fatalf("expected collapsed error detail, got %+v", result)
	}

	// The final log entry carries both failures.
	count, err := store.DeleteMessageLogsBefore(time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("log sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one final log entry, got %d", count)
	}
}

func TestEndToEndAppointmentReminder(t *testing.T) {
	messenger, consent, store, gateway := newMessengerFixture(t)

	if _, err := consent.SetConsent("u1", "+4915112345678", ConsentFlags{WhatsApp: true}, models.SourceAppSettings); err != nil {
		t.Fatalf("set consent: %v", err)
	}

	result, err := messenger.SendWithFallback(context.Background(), "u1", "APPOINTMENT_REMINDER_24H",
		models.PriorityNormal, map[string]string{"practice_name": "Dr. Vogel", "time": "10:00"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !result.Success || result.Channel != models.ChannelWhatsApp || result.FallbackUsed {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.ProviderMessageID == "" {
		t.Fatal("expected provider message id")
	}
	if gateway.lastCall().Channel != models.ChannelWhatsApp {
		t.Fatalf("expected WhatsApp send, got %s", gateway.lastCall().Channel)
	}

	entry, err := store.GetMessageLogByProviderID(result.ProviderMessageID)
	if err != nil {
		t.Fatalf("message log: %v", err)
	}
	if entry.TemplateName != "APPOINTMENT_REMINDER_24H" {
		t.Fatalf("expected template name in log, got %s", entry.TemplateName)
	}
	if entry.PhoneLast4 != "5678" {
		t.Fatalf("expected minimized phone, got %q", entry.PhoneLast4)
	}
	if len(entry.Preview) > 50 {
		t.Fatalf("preview too long: %d chars", len(entry.Preview))
	}
}

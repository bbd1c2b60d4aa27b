package services

import (
	"strings"
	"testing"

	"github.com/sanovia-health/messaging-backend/internal/models"
	"github.com/sanovia-health/messaging-backend/internal/storage"
)

func newInboundFixture(t *testing.T) (*InboundProcessor, *ConsentService, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	consent := NewConsentService(store)
	return NewInboundProcessor(store, consent), consent, store
}

func TestStopOptsOutEveryRecordOnThePhone(t *testing.T) {
	processor, consent, _ := newInboundFixture(t)

	phone := "+4915112345678"
	for _, userID := range []string{"parent", "child"} {
		if _, err := consent.SetConsent(userID, phone, ConsentFlags{SMS: true, WhatsApp: true}, models.SourceRegistration); err != nil {
			t.Fatalf("set consent: %v", err)
		}
	}

	reply, err := processor.ProcessIncoming(phone, "STOP", "SM100", models.ChannelSMS)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if reply != ReplyOptOutConfirm {
		t.Fatalf("expected opt-out confirmation, got %q", reply)
	}

	for _, userID := range []string{"parent", "child"} {
		for _, consentType := range []models.ConsentType{models.ConsentSMS, models.ConsentWhatsApp} {
			granted, _ := consent.HasConsent(userID, consentType)
			if granted {
				t.Fatalf("%s still has %s consent after STOP", userID, consentType)
			}
		}
	}

	// A second STOP is idempotent: same confirmation, no error.
	reply, err = processor.ProcessIncoming(phone, "stop", "SM101", models.ChannelSMS)
	if err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if reply != ReplyOptOutConfirm {
		t.Fatalf("expected opt-out confirmation on repeat, got %q", reply)
	}
}

func TestStartOptsIntoInboundChannel(t *testing.T) {
	processor, consent, _ := newInboundFixture(t)

	phone := "+4915112345678"
	if _, err := consent.SetConsent("u1", phone, ConsentFlags{}, models.SourceRegistration); err != nil {
		t.Fatalf("set consent: %v", err)
	}

	reply, err := processor.ProcessIncoming("whatsapp:"+phone, "START", "SM200", models.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if reply != ReplyOptInConfirm {
		t.Fatalf("expected opt-in confirmation, got %q", reply)
	}

	granted, _ := consent.HasConsent("u1", models.ConsentWhatsApp)
	if !granted {
		t.Fatal("expected WhatsApp consent after START on WhatsApp")
	}
	granted, _ = consent.HasConsent("u1", models.ConsentSMS)
	if granted {
		t.Fatal("START on WhatsApp must not grant SMS consent")
	}
}

func TestTwoWayMessageStoredMinimized(t *testing.T) {
	processor, consent, store := newInboundFixture(t)

	var notifiedUser string
	processor.WithNotifyHook(func(userID string, msg *models.IncomingMessage) {
		notifiedUser = userID
	})

	phone := "+4915112345678"
	if _, err := consent.SetConsent("u1", phone, ConsentFlags{SMS: true}, models.SourceRegistration); err != nil {
		t.Fatalf("set consent: %v", err)
	}

	body := "I need to move my appointment to Friday " + strings.Repeat("x", 600)
	reply, err := processor.ProcessIncoming(phone, body, "SM300", models.ChannelSMS)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if reply != ReplyReceived {
		t.Fatalf("expected received reply, got %q", reply)
	}
	if notifiedUser != "u1" {
		t.Fatalf("expected notify hook for u1, got %q", notifiedUser)
	}

	msgs, err := store.GetIncomingMessages("u1", 10)
	if err != nil {
		t.Fatalf("get incoming: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(msgs))
	}
	if msgs[0].FromLast4 != "5678" {
		t.Fatalf("expected minimized sender, got %q", msgs[0].FromLast4)
	}
	if len(msgs[0].Body) > 500 {
		t.Fatalf("body not capped: %d chars", len(msgs[0].Body))
	}
	if msgs[0].Read {
		t.Fatal("new message must be unread")
	}
}

func TestUnknownSenderGetsFixedReply(t *testing.T) {
	processor, _, store := newInboundFixture(t)

	reply, err := processor.ProcessIncoming("+4900000000000", "Hello?", "SM400", models.ChannelSMS)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if reply != ReplyUnknownSender {
		t.Fatalf("expected unknown-sender reply, got %q", reply)
	}
	if msgs, _ := store.GetIncomingMessages("", 10); len(msgs) != 0 {
		t.Fatal("unknown sender must not create state")
	}
}

func TestStatusUpdateAppliesToLog(t *testing.T) {
	processor, _, store := newInboundFixture(t)

	entry, err := store.CreateMessageLog(&models.MessageLog{
		UserID: "u1", ProviderMessageID: "SM500",
		TemplateName: "QUOTA_WARNING", Channel: models.ChannelSMS,
		Priority: models.PriorityNormal, Status: models.StatusQueued,
	})
	if err != nil {
		t.Fatalf("create log: %v", err)
	}

	if err := processor.ProcessStatusUpdate("SM500", models.StatusDelivered, "", ""); err != nil {
		t.Fatalf("status update: %v", err)
	}

	updated, err := store.GetMessageLogByProviderID("SM500")
	if err != nil {
		t.Fatalf("load log: %v", err)
	}
	if updated.Status != models.StatusDelivered {
		t.Fatalf("expected delivered, got %s", updated.Status)
	}
	if updated.ID != entry.ID {
		t.Fatalf("status update touched wrong entry")
	}
}

func TestStatusUpdateForSweptLogIsNoOp(t *testing.T) {
	processor, _, _ := newInboundFixture(t)

	if err := processor.ProcessStatusUpdate("SM999", models.StatusFailed, "30003", "unreachable"); err != nil {
		t.Fatalf("expected no-op for unknown provider id, got %v", err)
	}
}

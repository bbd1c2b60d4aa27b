package handlers

import (
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/sanovia-health/messaging-backend/internal/models"
	"github.com/sanovia-health/messaging-backend/internal/services"
	"github.com/sanovia-health/messaging-backend/internal/storage"
)

func newWebhookApp(t *testing.T) (*fiber.App, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	consent := services.NewConsentService(store)
	processor := services.NewInboundProcessor(store, consent)
	handler := NewWebhookHandler(processor)

	app := fiber.New()
	app.Post("/webhook/incoming", handler.HandleIncoming)
	app.Post("/webhook/status", handler.HandleStatus)
	return app, store
}

func postForm(t *testing.T, app *fiber.App, path string, form url.Values) (int, string) {
	t.Helper()

	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestIncomingStopRepliesWithTwiML(t *testing.T) {
	app, store := newWebhookApp(t)
	consent := services.NewConsentService(store)

	if _, err := consent.SetConsent("user-1", "+4915112345678",
		services.ConsentFlags{SMS: true, WhatsApp: true}, models.SourceWebSettings); err != nil {
		t.Fatalf("seed consent: %v", err)
	}

	form := url.Values{}
	form.Set("MessageSid", "SM-in-1")
	form.Set("From", "whatsapp:+4915112345678")
	form.Set("To", "whatsapp:+4915100000000")
	form.Set("Body", "STOP")

	status, body := postForm(t, app, "/webhook/incoming", form)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(body, "<Response>") || !strings.Contains(body, "<Message>") {
		t.Fatalf("expected TwiML envelope, got %q", body)
	}
	if !strings.Contains(body, "unsubscribed") {
		t.Fatalf("expected opt-out confirmation, got %q", body)
	}

	record, err := store.GetConsent("user-1")
	if err != nil {
		t.Fatalf("load consent: %v", err)
	}
	if record.SMS || record.WhatsApp {
		t.Fatalf("STOP must clear channel consent, got sms=%v whatsapp=%v", record.SMS, record.WhatsApp)
	}
}

func TestIncomingFromUnknownSender(t *testing.T) {
	app, _ := newWebhookApp(t)

	form := url.Values{}
	form.Set("MessageSid", "SM-in-2")
	form.Set("From", "+4915199999999")
	form.Set("Body", "Hello?")

	status, body := postForm(t, app, "/webhook/incoming", form)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(body, "could not identify") {
		t.Fatalf("expected unknown-sender reply, got %q", body)
	}
}

func TestStatusUpdateForUnknownMessageIsAcknowledged(t *testing.T) {
	app, _ := newWebhookApp(t)

	form := url.Values{}
	form.Set("MessageSid", "SM-never-sent")
	form.Set("MessageStatus", "delivered")

	status, _ := postForm(t, app, "/webhook/status", form)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 for unknown message id, got %d", status)
	}
}

func TestStatusUpdateAppliesToLog(t *testing.T) {
	app, store := newWebhookApp(t)

	entry := &models.MessageLog{
		UserID: "user-1", ProviderMessageID: "SM-out-1",
		TemplateName: "APPOINTMENT_REMINDER_24H", Channel: models.ChannelSMS,
		Priority: models.PriorityNormal, Status: models.StatusSent,
	}
	if _, err := store.CreateMessageLog(entry); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	form := url.Values{}
	form.Set("MessageSid", "SM-out-1")
	form.Set("MessageStatus", "failed")
	form.Set("ErrorCode", "30008")
	form.Set("ErrorMessage", "Unknown error")

	status, _ := postForm(t, app, "/webhook/status", form)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	updated, err := store.GetMessageLogByProviderID("SM-out-1")
	if err != nil {
		t.Fatalf("load log: %v", err)
	}
	if updated.Status != models.StatusFailed {
		t.Fatalf("expected failed status, got %q", updated.Status)
	}
	if updated.ErrorCode != "30008" {
		t.Fatalf("expected error code recorded, got %q", updated.ErrorCode)
	}
}

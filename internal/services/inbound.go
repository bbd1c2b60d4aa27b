package services

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/sanovia-health/messaging-backend/internal/models"
	"github.com/sanovia-health/messaging-backend/internal/storage"
	"github.com/sanovia-health/messaging-backend/internal/utils"
)

// Auto-reply texts. These go back synchronously in the webhook response;
// there is no asynchronous follow-up send.
const (
	ReplyOptOutConfirm  = "You have been unsubscribed from notifications. Reply START at any time to opt back in. You will still receive critical account and security messages."
	ReplyOptInConfirm   = "You are opted back in to notifications. Reply STOP at any time to unsubscribe."
	ReplyReceived       = "Thank you, your message has been received. Your practice will get back to you."
	ReplyUnknownSender  = "We could not identify your account from this number. Please contact your practice directly."
	ReplyTechnicalIssue = "We're experiencing technical difficulties. Please try again later."
)

// Opt-out keywords mandated by carrier compliance, matched case-insensitively.
var optOutKeywords = map[string]bool{
	"STOP": true, "STOPALL": true, "UNSUBSCRIBE": true,
	"CANCEL": true, "END": true, "QUIT": true,
}

// Opt-in keywords.
var optInKeywords = map[string]bool{
	"START": true, "YES": true, "UNSTOP": true,
}

// How many consent records a single inbound number may act on when opting in.
const optInRecordLimit = 5

// Cap stored inbound bodies; carriers allow concatenated messages far longer
// than anything we need to keep.
const incomingBodyCap = 500

// InboundProcessor classifies inbound provider callbacks and applies their
// side effects. Every path yields a reply text: the webhook must always
// answer the gateway.
type InboundProcessor struct {
	store   storage.Store
	consent *ConsentService

	// notify is called for stored two-way messages so the owning user gets
	// an in-app notification. Optional.
	notify func(userID string, msg *models.IncomingMessage)
}

// NewInboundProcessor creates a new inbound webhook processor
func NewInboundProcessor(store storage.Store, consent *ConsentService) *InboundProcessor {
	return &InboundProcessor{store: store, consent: consent}
}

// WithNotifyHook registers the in-app notification callback.
func (p *InboundProcessor) WithNotifyHook(fn func(userID string, msg *models.IncomingMessage)) *InboundProcessor {
	p.notify = fn
	return p
}

// ProcessIncoming handles one inbound message callback and returns the
// synchronous auto-reply. The returned error is for logging only; the reply
// is always usable.
func (p *InboundProcessor) ProcessIncoming(from, body, providerMessageID string, channel models.Channel) (string, error) {
	phone := utils.NormalizePhone(from)
	keyword := strings.ToUpper(strings.TrimSpace(body))

	log.Printf("📥 Inbound %s message from %s: %s", channel, utils.MaskPhone(phone), utils.Preview(keyword, 20))

	recs, err := p.consent.store.GetConsentsByPhone(phone, 0)
	if err != nil {
		return ReplyTechnicalIssue, fmt.Errorf("failed to look up sender: %w", err)
	}
	if len(recs) == 0 {
		return ReplyUnknownSender, nil
	}

	switch {
	case optOutKeywords[keyword]:
		if _, err := p.consent.BulkOptOut(phone); err != nil {
			return ReplyTechnicalIssue, fmt.Errorf("opt-out failed: %w", err)
		}
		return ReplyOptOutConfirm, nil

	case optInKeywords[keyword]:
		if _, err := p.consent.BulkOptIn(phone, channel, optInRecordLimit); err != nil {
			return ReplyTechnicalIssue, fmt.Errorf("opt-in failed: %w", err)
		}
		return ReplyOptInConfirm, nil

	default:
		msg := &models.IncomingMessage{
			UserID:            recs[0].UserID,
			FromLast4:         utils.PhoneLast4(phone),
			Body:              utils.Preview(strings.TrimSpace(body), incomingBodyCap),
			ProviderMessageID: providerMessageID,
			Channel:           channel,
		}
		stored, err := p.store.CreateIncomingMessage(msg)
		if err != nil {
			return ReplyTechnicalIssue, fmt.Errorf("failed to store incoming message: %w", err)
		}
		if p.notify != nil {
			p.notify(stored.UserID, stored)
		}
		return ReplyReceived, nil
	}
}

// ProcessStatusUpdate applies a delivery status callback to the matching
// message log entry. A missing entry is a no-op, not an error: the log may
// already have been swept.
func (p *InboundProcessor) ProcessStatusUpdate(providerMessageID string, status models.MessageStatus, errorCode, errorMessage string) error {
	entry, err := p.store.GetMessageLogByProviderID(providerMessageID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up message log: %w", err)
	}

	entry.Status = status
	if errorCode != "" {
		entry.ErrorCode = errorCode
	}
	if errorMessage != "" {
		entry.ErrorMessage = errorMessage
	}
	if err := p.store.UpdateMessageLog(entry); err != nil {
		return fmt.Errorf("failed to update message log: %w", err)
	}
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sanovia-health/messaging-backend/internal/models"
	"github.com/sanovia-health/messaging-backend/internal/storage"
	"github.com/sanovia-health/messaging-backend/internal/utils"
)

var (
	// ErrNoPhoneNumber means the user has no phone number on file; nothing
	// was sent.
	ErrNoPhoneNumber = errors.New("user has no phone number on file")
	// ErrConsentDenied means consent gating blocked the send; nothing was
	// sent and no fallback is attempted for consent refusals.
	ErrConsentDenied = errors.New("user has not consented to this message type")
)

// SendResult reports the outcome of an orchestrated send.
type SendResult struct {
	Success           bool           `json:"success"`
	Channel           models.Channel `json:"channel"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	FallbackUsed      bool           `json:"fallback_used"`
	ErrorCode         string         `json:"error_code,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
}

// Messenger coordinates one outbound notification: consent gating, template
// rendering, channel selection with fallback, and message logging.
type Messenger struct {
	store       storage.Store
	consent     *ConsentService
	gateway     Gateway
	preferred   models.Channel
	sendTimeout time.Duration
}

// NewMessenger creates a new messaging orchestrator. The preferred channel
// defaults to WhatsApp.
func NewMessenger(store storage.Store, consent *ConsentService, gateway Gateway) *Messenger {
	return &Messenger{
		store:       store,
		consent:     consent,
		gateway:     gateway,
		preferred:   models.ChannelWhatsApp,
		sendTimeout: 20 * time.Second,
	}
}

// WithPreferredChannel overrides the default preferred channel.
func (m *Messenger) WithPreferredChannel(c models.Channel) *Messenger {
	m.preferred = c
	return m
}

// SendWithFallback delivers one templated message to a user. The preferred
// channel is tried first; a transport failure (never a consent refusal)
// triggers exactly one attempt on the other channel. A MessageLog entry is
// persisted for every outcome.
func (m *Messenger) SendWithFallback(ctx context.Context, userID, templateName string, priority models.MessagePriority, vars map[string]string) (*SendResult, error) {
	requiresConsent, err := TemplateRequiresConsent(templateName)
	if err != nil {
		return nil, err
	}

	phone, err := m.consent.PhoneFor(userID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && phone == "") {
		m.persistLog(userID, "", "", templateName, m.preferred, priority, &SendResult{
			Success: false, Channel: m.preferred, ErrorCode: "no_phone_number",
			ErrorMessage: ErrNoPhoneNumber.Error(),
		})
		return nil, ErrNoPhoneNumber
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve phone number: %w", err)
	}

	if requiresConsent {
		ok, err := m.consent.HasConsent(userID, models.ForChannel(m.preferred))
		if err != nil {
			return nil, err
		}
		if !ok {
			m.persistLog(userID, phone, "", templateName, m.preferred, priority, &SendResult{
				Success: false, Channel: m.preferred, ErrorCode: "consent_denied",
				ErrorMessage: ErrConsentDenied.Error(),
			})
			return nil, ErrConsentDenied
		}
	}

	text, err := RenderTemplate(templateName, vars)
	if err != nil {
		return nil, err
	}

	first := m.attempt(ctx, m.preferred, phone, text)
	if first.Success {
		result := &SendResult{
			Success:           true,
			Channel:           m.preferred,
			ProviderMessageID: first.ProviderMessageID,
		}
		m.persistLog(userID, phone, text, templateName, m.preferred, priority, result)
		m.recordReminder(userID, templateName, m.preferred, first.ProviderMessageID)
		return result, nil
	}

	// Transport failure on the preferred channel: one fallback attempt on
	// the other channel, re-gated by that channel's own consent.
	fallback := m.preferred.Other()
	log.Printf("⚠️  %s send to %s failed (%s), trying %s fallback",
		m.preferred, utils.MaskPhone(phone), first.ErrorCode, fallback)

	if requiresConsent {
		ok, err := m.consent.HasConsent(userID, models.ForChannel(fallback))
		if err != nil {
			return nil, err
		}
		if !ok {
			result := &SendResult{
				Success:      false,
				Channel:      m.preferred,
				ErrorCode:    first.ErrorCode,
				ErrorMessage: collapseErrors(m.preferred, first.ErrorMessage, fallback, ErrConsentDenied.Error()),
			}
			m.persistLog(userID, phone, text, templateName, m.preferred, priority, result)
			return nil, ErrConsentDenied
		}
	}

	second := m.attempt(ctx, fallback, phone, text)
	result := &SendResult{
		Success:           second.Success,
		Channel:           fallback,
		ProviderMessageID: second.ProviderMessageID,
		FallbackUsed:      true,
	}
	if !second.Success {
		result.ErrorCode = collapseCodes(first.ErrorCode, second.ErrorCode)
		result.ErrorMessage = collapseErrors(m.preferred, first.ErrorMessage, fallback, second.ErrorMessage)
	}
	m.persistLog(userID, phone, text, templateName, fallback, priority, result)
	if second.Success {
		m.recordReminder(userID, templateName, fallback, second.ProviderMessageID)
	}
	return result, nil
}

// attempt performs one gateway send with a bounded timeout. A timeout is a
// transport failure like any other, eligible for fallback.
func (m *Messenger) attempt(ctx context.Context, channel models.Channel, phone, text string) *DeliveryResult {
	sendCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()

	result, err := m.gateway.Send(sendCtx, channel, phone, text)
	if result == nil {
		result = &DeliveryResult{
			Success: false,
			Status:  models.StatusFailed,
		}
		if err != nil {
			result.ErrorCode = "transport_error"
			result.ErrorMessage = err.Error()
		}
	}
	return result
}

func (m *Messenger) persistLog(userID, phone, text, templateName string, channel models.Channel, priority models.MessagePriority, result *SendResult) {
	status := models.StatusFailed
	if result.Success {
		status = models.StatusQueued
	}
	entry := &models.MessageLog{
		UserID:            userID,
		PhoneLast4:        utils.PhoneLast4(phone),
		Preview:           utils.Preview(text, 50),
		TemplateName:      templateName,
		Channel:           channel,
		Priority:          priority,
		ProviderMessageID: result.ProviderMessageID,
		Status:            status,
		ErrorCode:         result.ErrorCode,
		ErrorMessage:      result.ErrorMessage,
		FallbackUsed:      result.FallbackUsed,
	}
	if _, err := m.store.CreateMessageLog(entry); err != nil {
		log.Printf("❌ Failed to persist message log for %s: %v", userID, err)
	}
}

func (m *Messenger) recordReminder(userID, templateName string, channel models.Channel, providerID string) {
	switch templateReminderKind(templateName) {
	case ReminderRegular:
		err := m.store.CreateReminderLog(&models.ReminderLog{
			UserID: userID, TemplateName: templateName, Channel: channel, ProviderMessageID: providerID,
		})
		if err != nil {
			log.Printf("❌ Failed to record reminder log for %s: %v", userID, err)
		}
	case ReminderOverdue:
		err := m.store.CreateOverdueReminderLog(&models.OverdueReminderLog{
			UserID: userID, TemplateName: templateName, Channel: channel, ProviderMessageID: providerID,
		})
		if err != nil {
			log.Printf("❌ Failed to record overdue reminder log for %s: %v", userID, err)
		}
	}
}

func collapseCodes(first, second string) string {
	if first == "" {
		return second
	}
	if second == "" {
		return first
	}
	return first + ";" + second
}

func collapseErrors(c1 models.Channel, m1 string, c2 models.Channel, m2 string) string {
	return fmt.Sprintf("%s: %s; %s: %s", c1, m1, c2, m2)
}

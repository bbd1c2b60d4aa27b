package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/sanovia-health/messaging-backend/internal/models"
	"github.com/sanovia-health/messaging-backend/internal/utils"
)

// GatewayMode controls whether sends reach the network.
type GatewayMode string

const (
	// GatewayLive issues one provider call per send.
	GatewayLive GatewayMode = "live"
	// GatewayMock returns synthetic successes without any network call,
	// for environments without provider credentials.
	GatewayMock GatewayMode = "mock"
	// GatewayDisabled is the global kill switch: every send fails locally.
	GatewayDisabled GatewayMode = "disabled"
)

// DeliveryResult is the outcome of a single gateway send.
type DeliveryResult struct {
	Success           bool
	Status            models.MessageStatus
	ProviderMessageID string
	ErrorCode         string
	ErrorMessage      string
}

// Gateway abstracts the external SMS/WhatsApp provider. It never retries
// internally; retry and fallback belong to the Messenger.
type Gateway interface {
	Send(ctx context.Context, channel models.Channel, phone, text string) (*DeliveryResult, error)
	FetchStatus(ctx context.Context, providerMessageID string) (models.MessageStatus, error)
	HealthCheck(ctx context.Context) error
}

// TwilioGateway implements Gateway against the Twilio REST API.
type TwilioGateway struct {
	client       *twilio.RestClient
	smsFrom      string
	whatsappFrom string
	mode         GatewayMode
}

// NewTwilioGateway creates a gateway from environment configuration.
// GATEWAY_MODE selects live/mock/disabled; live mode requires credentials.
func NewTwilioGateway() (*TwilioGateway, error) {
	mode := GatewayMode(os.Getenv("GATEWAY_MODE"))
	if mode == "" {
		mode = GatewayLive
	}

	accountSid := os.Getenv("TWILIO_ACCOUNT_SID")
	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	smsFrom := os.Getenv("TWILIO_PHONE_NUMBER")
	whatsappFrom := os.Getenv("TWILIO_WHATSAPP_FROM") // Format: "whatsapp:+14155238886"

	g := &TwilioGateway{
		smsFrom:      smsFrom,
		whatsappFrom: whatsappFrom,
		mode:         mode,
	}

	if mode != GatewayLive {
		log.Printf("⚠️  Gateway running in %s mode - no provider calls will be made", mode)
		return g, nil
	}

	if accountSid == "" || authToken == "" || smsFrom == "" {
		return nil, fmt.Errorf("missing Twilio credentials in environment variables")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})
	client.Client.SetTimeout(15 * time.Second)
	g.client = client

	return g, nil
}

// Mode returns the configured gateway mode.
func (g *TwilioGateway) Mode() GatewayMode { return g.mode }

// Send delivers one message on one channel. Exactly one provider call in
// live mode, zero otherwise.
func (g *TwilioGateway) Send(ctx context.Context, channel models.Channel, phone, text string) (*DeliveryResult, error) {
	to := utils.NormalizePhone(phone)

	switch g.mode {
	case GatewayDisabled:
		log.Printf("🚫 Gateway disabled, dropping %s message to %s", channel, utils.MaskPhone(to))
		return &DeliveryResult{
			Success:      false,
			Status:       models.StatusFailed,
			ErrorCode:    "gateway_disabled",
			ErrorMessage: "message gateway is disabled",
		}, nil
	case GatewayMock:
		id := "mock-" + uuid.NewString()
		log.Printf("📤 [mock] %s message to %s: %s", channel, utils.MaskPhone(to), utils.Preview(text, 50))
		return &DeliveryResult{
			Success:           true,
			Status:            models.StatusQueued,
			ProviderMessageID: id,
		}, nil
	}

	if err := ctx.Err(); err != nil {
		return &DeliveryResult{
			Success:      false,
			Status:       models.StatusFailed,
			ErrorCode:    "context",
			ErrorMessage: err.Error(),
		}, err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetBody(text)
	if channel == models.ChannelWhatsApp {
		params.SetFrom(g.whatsappFrom)
		params.SetTo(fmt.Sprintf("whatsapp:%s", to))
	} else {
		params.SetFrom(g.smsFrom)
		params.SetTo(to)
	}

	resp, err := g.client.Api.CreateMessage(params)
	if err != nil {
		log.Printf("❌ Failed to send %s message to %s: %v", channel, utils.MaskPhone(to), err)
		return &DeliveryResult{
			Success:      false,
			Status:       models.StatusFailed,
			ErrorCode:    "provider_error",
			ErrorMessage: err.Error(),
		}, err
	}

	result := &DeliveryResult{Success: true, Status: models.StatusQueued}
	if resp.Sid != nil {
		result.ProviderMessageID = *resp.Sid
	}
	if resp.Status != nil {
		result.Status = models.MessageStatus(*resp.Status)
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		result.Success = false
		result.Status = models.StatusFailed
		result.ErrorCode = fmt.Sprintf("%d", *resp.ErrorCode)
		if resp.ErrorMessage != nil {
			result.ErrorMessage = *resp.ErrorMessage
		}
		log.Printf("❌ Provider rejected %s message to %s: %s", channel, utils.MaskPhone(to), result.ErrorCode)
		return result, nil
	}

	log.Printf("✅ %s message sent to %s, SID: %s", channel, utils.MaskPhone(to), result.ProviderMessageID)
	return result, nil
}

// FetchStatus polls the provider for the current delivery status.
func (g *TwilioGateway) FetchStatus(ctx context.Context, providerMessageID string) (models.MessageStatus, error) {
	if g.mode != GatewayLive {
		return models.StatusSent, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, err := g.client.Api.FetchMessage(providerMessageID, &twilioApi.FetchMessageParams{})
	if err != nil {
		return "", fmt.Errorf("failed to fetch message status: %w", err)
	}
	if resp.Status == nil {
		return models.StatusQueued, nil
	}
	return models.MessageStatus(*resp.Status), nil
}

// HealthCheck probes the provider account so boot and monitoring can detect
// broken credentials early.
func (g *TwilioGateway) HealthCheck(ctx context.Context) error {
	if g.mode != GatewayLive {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.ListMessageParams{}
	params.SetPageSize(1)
	params.SetLimit(1)
	if _, err := g.client.Api.ListMessage(params); err != nil {
		return fmt.Errorf("gateway health check failed: %w", err)
	}
	return nil
}

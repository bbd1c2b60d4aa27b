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
	// ErrOTPNotFound means no pending code exists for the user and purpose.
	ErrOTPNotFound = errors.New("no pending verification code")
	// ErrOTPExpired means the code's validity window has passed.
	ErrOTPExpired = errors.New("verification code expired")
	// ErrOTPAttemptsExceeded means the attempt budget is spent; even the
	// correct code is rejected from now on.
	ErrOTPAttemptsExceeded = errors.New("too many verification attempts")
	// ErrOTPSendFailed means the code could not be delivered on any channel.
	ErrOTPSendFailed = errors.New("failed to deliver verification code")
)

// InvalidCodeError reports a wrong code and how many attempts remain.
type InvalidCodeError struct {
	AttemptsRemaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid verification code, %d attempts remaining", e.AttemptsRemaining)
}

// OTPIssue is the metadata returned to callers on issuance. The code itself
// is never part of it.
type OTPIssue struct {
	UserID      string            `json:"user_id"`
	Purpose     models.OTPPurpose `json:"purpose"`
	Channel     models.Channel    `json:"channel"`
	MaskedPhone string            `json:"masked_phone"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

// OTPService issues and verifies short-lived numeric codes. OTP sends bypass
// consent gating: they are security messages and always deliverable.
type OTPService struct {
	store   storage.Store
	gateway Gateway
}

// NewOTPService creates a new OTP service
func NewOTPService(store storage.Store, gateway Gateway) *OTPService {
	return &OTPService{store: store, gateway: gateway}
}

// DefaultValidityMinutes and DefaultMaxAttempts are the observed policy
// defaults for phone OTPs.
const (
	DefaultValidityMinutes = 10
	DefaultMaxAttempts     = 3
)

// Issue generates a 6-digit code, persists its salted hash, and sends the
// purpose-specific template through the gateway. Only metadata comes back.
func (s *OTPService) Issue(ctx context.Context, userID, phone string, purpose models.OTPPurpose, validityMinutes int, channel models.Channel) (*OTPIssue, error) {
	if validityMinutes <= 0 {
		validityMinutes = DefaultValidityMinutes
	}

	code, err := utils.GenerateSecureOTP()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}
	salt, err := utils.GenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	normalized := utils.NormalizePhone(phone)
	otp := &models.OTP{
		UserID:    userID,
		Phone:     normalized,
		CodeHash:  utils.HashOTP(code, salt),
		CodeSalt:  salt,
		Purpose:   purpose,
		Channel:   channel,
		ExpiresAt: time.Now().Add(time.Duration(validityMinutes) * time.Minute),
	}
	if _, err := s.store.CreateOTP(otp); err != nil {
		return nil, fmt.Errorf("failed to persist verification code: %w", err)
	}

	text, err := RenderTemplate(OTPTemplateFor(string(purpose)), map[string]string{
		"code":     code,
		"validity": fmt.Sprintf("%d", validityMinutes),
	})
	if err != nil {
		return nil, err
	}

	result, sendErr := s.gateway.Send(ctx, channel, normalized, text)
	if result == nil || !result.Success {
		if sendErr != nil {
			log.Printf("❌ OTP send failed for user %s: %v", userID, sendErr)
		}
		return nil, ErrOTPSendFailed
	}

	log.Printf("🔐 OTP issued for user %s (%s) via %s to %s",
		userID, purpose, channel, utils.MaskPhone(normalized))

	return &OTPIssue{
		UserID:      userID,
		Purpose:     purpose,
		Channel:     channel,
		MaskedPhone: utils.MaskPhone(normalized),
		ExpiresAt:   otp.ExpiresAt,
	}, nil
}

// Verify checks a code against the most recent unverified record for the
// user and purpose. An attempt is charged atomically in the store before the
// comparison, so a verification call always costs an attempt and the limit
// holds under concurrent calls.
func (s *OTPService) Verify(ctx context.Context, userID, code string, purpose models.OTPPurpose, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	otp, err := s.store.GetLatestUnverifiedOTP(userID, purpose)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrOTPNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load verification code: %w", err)
	}

	if time.Now().After(otp.ExpiresAt) {
		return ErrOTPExpired
	}

	attempts, err := s.store.IncrementOTPAttempts(otp.ID, maxAttempts)
	if errors.Is(err, storage.ErrAttemptsExhausted) {
		return ErrOTPAttemptsExceeded
	}
	if err != nil {
		return fmt.Errorf("failed to charge verification attempt: %w", err)
	}

	if !utils.VerifyOTPHash(code, otp.CodeSalt, otp.CodeHash) {
		return &InvalidCodeError{AttemptsRemaining: maxAttempts - attempts}
	}

	if err := s.store.MarkOTPVerified(otp.ID, time.Now()); err != nil {
		return fmt.Errorf("failed to mark code verified: %w", err)
	}
	log.Printf("✅ OTP verified for user %s (%s)", userID, purpose)
	return nil
}

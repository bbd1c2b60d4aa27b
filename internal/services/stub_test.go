package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/sanovia-health/messaging-backend/internal/models"
)

// stubGateway records every send and fails the channels it is told to fail.
type stubGateway struct {
	mu    sync.Mutex
	calls []stubCall
	fail  map[models.Channel]bool
}

type stubCall struct {
	Channel models.Channel
	Phone   string
	Text    string
}

func newStubGateway() *stubGateway {
	return &stubGateway{fail: make(map[models.Channel]bool)}
}

func (s *stubGateway) Send(ctx context.Context, channel models.Channel, phone, text string) (*DeliveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, stubCall{Channel: channel, Phone: phone, Text: text})
	if s.fail[channel] {
		return &DeliveryResult{
			Success:      false,
			Status:       models.StatusFailed,
			ErrorCode:    "30008",
			ErrorMessage: "unknown destination",
		}, nil
	}
	return &DeliveryResult{
		Success:           true,
		Status:            models.StatusQueued,
		ProviderMessageID: "SM" + uuid.NewString(),
	}, nil
}

func (s *stubGateway) FetchStatus(ctx context.Context, providerMessageID string) (models.MessageStatus, error) {
	return models.StatusSent, nil
}

func (s *stubGateway) HealthCheck(ctx context.Context) error { return nil }

func (s *stubGateway) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubGateway) lastCall() stubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

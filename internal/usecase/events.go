package usecase

import (
	"context"
	"errors"
	"time"

	"identity-service/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventAccountRegistered  = "account.registered"
	EventAccountVerified    = "account.verified"
	EventPasswordReset      = "account.password_reset"
	EventFederatedProvision = "account.federated_provisioned"
	EventSessionIssued      = "session.issued"
	EventSessionRevoked     = "session.revoked"
)

// AccountEvent is a lifecycle notification for downstream consumers.
// It never carries codes or password material.
type AccountEvent struct {
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	AccountID  string          `json:"account_id"`
	Email      string          `json:"email"`
	Role       domain.Role     `json:"role"`
	Provider   domain.Provider `json:"provider"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// EventPublisher is implemented by the Kafka producer and the Redis publisher.
type EventPublisher interface {
	PublishAccountEvent(ctx context.Context, ev *AccountEvent) error
}

// EventFanout publishes to every wrapped publisher and joins their errors.
type EventFanout []EventPublisher

func (f EventFanout) PublishAccountEvent(ctx context.Context, ev *AccountEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishAccountEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// emit publishes best effort. A lost event never fails the request.
func (uc *IdentityUsecase) emit(ctx context.Context, eventType string, a *domain.Account) {
	if uc.events == nil {
		return
	}
	ev := &AccountEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		AccountID:  a.ID,
		Email:      a.Email,
		Role:       a.Role,
		Provider:   a.Provider,
		OccurredAt: uc.now().UTC(),
	}
	if err := uc.events.PublishAccountEvent(ctx, ev); err != nil {
		uc.logger.Warn("failed to publish account event",
			zap.String("type", eventType),
			zap.String("account_id", a.ID),
			zap.Error(err),
		)
	}
}

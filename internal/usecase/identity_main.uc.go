package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"identity-service/internal/domain"
	"identity-service/internal/repository"
	"identity-service/pkg/metrics"
	"identity-service/pkg/telemetry"
	"identity-service/pkg/utils"
	"identity-service/shared/auth/pkg/jwtutil"
	xerrors "identity-service/shared/utils/errors"
	"identity-service/shared/utils/id"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// NotificationGateway delivers a code to an address. Implementations must
// return promptly once ctx is done.
type NotificationGateway interface {
	SendCode(ctx context.Context, to, code string, purpose domain.CodePurpose) error
}

// SessionRevoker remembers logged out token ids until they would expire anyway.
type SessionRevoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// ResendPolicy decides what happens to a freshly issued code when its
// delivery fails.
type ResendPolicy string

const (
	// ResendRollback persists the new code only after delivery succeeds,
	// so the previous code stays valid on failure.
	ResendRollback ResendPolicy = "rollback"
	// ResendKeep persists first; the undelivered code replaces the old one.
	ResendKeep ResendPolicy = "keep"
)

func ParseResendPolicy(s string) (ResendPolicy, error) {
	switch ResendPolicy(s) {
	case "", ResendRollback:
		return ResendRollback, nil
	case ResendKeep:
		return ResendKeep, nil
	}
	return "", fmt.Errorf("unknown resend policy %q", s)
}

type Options struct {
	CodeTTL      time.Duration
	ResendPolicy ResendPolicy
	Now          func() time.Time
}

type IdentityUsecase struct {
	store    repository.CredentialStore
	hasher   *utils.PasswordHasher
	otp      *OneTimeCodeService
	notifier NotificationGateway
	tokens   *jwtutil.Generator
	verifier *jwtutil.Verifier
	revoker  SessionRevoker
	events   EventPublisher
	sf       *id.Snowflake
	logger   *zap.Logger
	tracer   trace.Tracer
	policy   ResendPolicy
	now      func() time.Time
}

func NewIdentityUsecase(
	store repository.CredentialStore,
	hasher *utils.PasswordHasher,
	notifier NotificationGateway,
	tokens *jwtutil.Generator,
	verifier *jwtutil.Verifier,
	revoker SessionRevoker,
	events EventPublisher,
	sf *id.Snowflake,
	logger *zap.Logger,
	opts Options,
) *IdentityUsecase {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ResendPolicy == "" {
		opts.ResendPolicy = ResendRollback
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityUsecase{
		store:    store,
		hasher:   hasher,
		otp:      NewOneTimeCodeService(opts.CodeTTL),
		notifier: notifier,
		tokens:   tokens,
		verifier: verifier,
		revoker:  revoker,
		events:   events,
		sf:       sf,
		logger:   logger,
		tracer:   telemetry.Tracer(),
		policy:   opts.ResendPolicy,
		now:      opts.Now,
	}
}

func (uc *IdentityUsecase) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return uc.tracer.Start(ctx, "identity."+op)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// findByEmail normalises the address and separates "no such account" from
// storage failures.
func (uc *IdentityUsecase) findByEmail(ctx context.Context, email string) (*domain.Account, error) {
	acc, err := uc.store.FindByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, xerrors.ErrUserNotFound) {
			return nil, xerrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("account.id", acc.ID))
	return acc, nil
}

// dispatch sends a code and records the outcome. The returned error matches
// both ErrDeliveryFailure and the gateway's own error.
func (uc *IdentityUsecase) dispatch(ctx context.Context, to, code string, purpose domain.CodePurpose) error {
	if err := uc.notifier.SendCode(ctx, to, code, purpose); err != nil {
		metrics.Deliveries.WithLabelValues("failed").Inc()
		uc.logger.Error("code delivery failed",
			zap.String("purpose", string(purpose)),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", xerrors.ErrDeliveryFailure, err)
	}
	metrics.Deliveries.WithLabelValues("sent").Inc()
	metrics.CodesIssued.WithLabelValues(string(purpose)).Inc()
	return nil
}

// reissue gives an existing account a new code and delivers it, persisting
// according to the configured ResendPolicy.
func (uc *IdentityUsecase) reissue(ctx context.Context, acc *domain.Account, purpose domain.CodePurpose) error {
	now := uc.now()
	code, err := uc.otp.Issue(acc, now)
	if err != nil {
		return err
	}

	persist := func() error {
		if err := uc.store.SetPendingCode(ctx, acc.ID, code, *acc.CodeExpiresAt, now); err != nil {
			return fmt.Errorf("store pending code: %w", err)
		}
		return nil
	}

	if uc.policy == ResendKeep {
		if err := persist(); err != nil {
			return err
		}
		return uc.dispatch(ctx, acc.Email, code, purpose)
	}

	if err := uc.dispatch(ctx, acc.Email, code, purpose); err != nil {
		return err
	}
	return persist()
}

func codeCheckResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, xerrors.ErrExpiredOTP):
		return "expired"
	case errors.Is(err, xerrors.ErrInvalidOTP):
		return "mismatch"
	case errors.Is(err, xerrors.ErrNoCodeOutstanding), errors.Is(err, xerrors.ErrNoResetOutstanding):
		return "none"
	}
	return "error"
}

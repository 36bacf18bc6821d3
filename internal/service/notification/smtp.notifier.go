package notification

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"regexp"
	"time"

	"identity-service/internal/domain"
	xerrors "identity-service/shared/utils/errors"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	AttemptTimeout time.Duration
	MaxAttempts    uint
}

// SMTPNotifier sends code emails through an SMTP relay. Transient failures
// are retried with exponential backoff; provider rejections are not.
type SMTPNotifier struct {
	cfg       SMTPConfig
	templates *TemplateService
	send      func(*gomail.Message) error
	backoff   func() backoff.BackOff
	logger    *zap.Logger
}

func NewSMTPNotifier(cfg SMTPConfig, templates *TemplateService, logger *zap.Logger) *SMTPNotifier {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &SMTPNotifier{
		cfg:       cfg,
		templates: templates,
		send:      func(m *gomail.Message) error { return dialer.DialAndSend(m) },
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		logger: logger,
	}
}

func (n *SMTPNotifier) SendCode(ctx context.Context, to, code string, purpose domain.CodePurpose) error {
	msg, err := n.templates.Render(to, code, purpose)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, n.attempt(ctx, m)
	},
		backoff.WithBackOff(n.backoff()),
		backoff.WithMaxTries(n.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			n.logger.Warn("retrying code email",
				zap.String("purpose", string(purpose)),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}),
	)
	return err
}

// attempt performs one bounded send. gomail has no context support, so the
// send runs in its own goroutine and is abandoned on timeout. An abandoned
// send may still reach the relay, so a timeout ends the retry loop and the
// caller treats the code as undelivered. A late message then carries a code
// that no stored account holds.
func (n *SMTPNotifier) attempt(ctx context.Context, m *gomail.Message) error {
	attemptCtx, cancel := context.WithTimeout(ctx, n.cfg.AttemptTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- n.send(m) }()

	select {
	case err := <-done:
		return classify(err)
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return backoff.Permanent(xerrors.ErrDeliveryTimeout)
	}
}

// gomail flattens send errors into strings, so the reply code is also
// recovered from the message text.
var smtpReplyCode = regexp.MustCompile(`(?:^|:\s)(5\d\d)[\s-]`)

// classify marks 5xx replies as permanent rejections.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return backoff.Permanent(fmt.Errorf("%w: %w", xerrors.ErrDeliveryRejected, err))
	}
	if smtpReplyCode.MatchString(err.Error()) {
		return backoff.Permanent(fmt.Errorf("%w: %w", xerrors.ErrDeliveryRejected, err))
	}
	return err
}

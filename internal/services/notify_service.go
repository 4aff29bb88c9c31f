package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESLockoutNotifier mails lockout alerts to the security address via AWS SES.
type SESLockoutNotifier struct {
	sesClient       *ses.Client
	fromAddress     string
	securityAddress string
	logger          *slog.Logger
}

// NewSESLockoutNotifier creates a new SES-backed lockout notifier.
func NewSESLockoutNotifier(region, fromAddress, securityAddress string, logger *slog.Logger) (*SESLockoutNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESLockoutNotifier{
		sesClient:       ses.NewFromConfig(cfg),
		fromAddress:     fromAddress,
		securityAddress: securityAddress,
		logger:          logger,
	}, nil
}

// NotifyLockout sends a lockout alert. Failures are logged, never surfaced:
// alerting must not change the login flow's outcome.
func (n *SESLockoutNotifier) NotifyLockout(ctx context.Context, login, clientIP string, retryAfterSeconds int) {
	subject := "Login throttle tripped"
	body := fmt.Sprintf(
		"The login throttle tripped for %q from %s.\n\nThe bucket resets in %d seconds. Repeated lockouts for the same login may indicate a brute-force attempt.\n",
		login, clientIP, retryAfterSeconds,
	)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{n.securityAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(body),
				},
			},
		},
	}

	result, err := n.sesClient.SendEmail(ctx, input)
	if err != nil {
		n.logger.Error("failed to send lockout notification via SES",
			slog.String("client_ip", clientIP),
			slog.Any("error", err))
		return
	}

	n.logger.Info("lockout notification sent",
		slog.String("client_ip", clientIP),
		slog.String("message_id", *result.MessageId))
}

// NoopLockoutNotifier drops notifications. Used when alerting is disabled;
// the audit log still records every lockout.
type NoopLockoutNotifier struct{}

func (NoopLockoutNotifier) NotifyLockout(ctx context.Context, login, clientIP string, retryAfterSeconds int) {
}

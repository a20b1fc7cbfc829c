package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAlertMailer sends security alert emails to the ops address via AWS SES
type SESAlertMailer struct {
	sesClient   *ses.Client
	fromAddress string
	toAddress   string
	logger      *slog.Logger
}

// NewSESAlertMailer creates an SES-backed alert mailer
func NewSESAlertMailer(region, fromAddress, toAddress string, logger *slog.Logger) (*SESAlertMailer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESAlertMailer{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		toAddress:   toAddress,
		logger:      logger,
	}, nil
}

// SendSecurityAlert sends a plain-text alert email
func (s *SESAlertMailer) SendSecurityAlert(ctx context.Context, subject, body string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{s.toAddress},
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

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send security alert via SES",
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send alert: %w", err)
	}

	s.logger.Info("security alert sent",
		slog.String("subject", subject),
		slog.String("message_id", *result.MessageId))

	return nil
}

// NopAlertMailer discards alerts; used when alerting is disabled
type NopAlertMailer struct{}

func (NopAlertMailer) SendSecurityAlert(ctx context.Context, subject, body string) error {
	return nil
}

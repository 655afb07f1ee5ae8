package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/dhcgn/mail-merge/clock"
)

const (
	sesMaxRetries     = 3
	sesBaseRetryDelay = time.Second
)

// SESOptions configures the SES v2 sender. Empty keys fall back to the
// default AWS credential chain.
type SESOptions struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SendEmailAPI is the SES v2 operation used by SES.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SES submits raw messages through the SES v2 API. Only throttled requests
// are retried; anything else may already have been accepted and is left to
// the caller's verification.
type SES struct {
	client SendEmailAPI
	clock  clock.Clock
	logger *slog.Logger
}

func NewSES(ctx context.Context, opts SESOptions, logger *slog.Logger) (*SES, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESWithClient(sesv2.NewFromConfig(awsCfg), nil, logger), nil
}

// NewSESWithClient wraps an existing client.
func NewSESWithClient(client SendEmailAPI, clk clock.Clock, logger *slog.Logger) *SES {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SES{client: client, clock: clk, logger: logger}
}

func (s *SES) Name() string { return "ses" }

func (s *SES) Send(ctx context.Context, from string, rcpt []string, raw []byte) error {
	if len(rcpt) == 0 {
		return ErrNoRecipients
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: rcpt},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= sesMaxRetries; attempt++ {
		if attempt > 0 {
			delay := sesBackoff(attempt)
			s.logger.Debug("retrying SES request", "attempt", attempt, "delay", delay)
			if err := s.clock.Sleep(ctx, delay); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		out, err := s.client.SendEmail(ctx, input)
		if err == nil {
			if out != nil && out.MessageId != nil {
				s.logger.Debug("ses message accepted", "sesMessageID", *out.MessageId)
			}
			return nil
		}
		lastErr = err
		if !throttled(err) {
			return fmt.Errorf("ses send: %w", err)
		}
		s.logger.Warn("SES throttled request", "attempt", attempt, "err", err)
	}
	return fmt.Errorf("ses send failed after %d retries: %w", sesMaxRetries, lastErr)
}

func throttled(err error) bool {
	var tooMany *types.TooManyRequestsException
	return errors.As(err, &tooMany)
}

func sesBackoff(attempt int) time.Duration {
	delay := sesBaseRetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"golang.org/x/time/rate"
)

// SMSProvider submits one text message and returns the provider message id.
type SMSProvider interface {
	SendSMS(ctx context.Context, to, message string) (string, error)
}

// SNSService is the SNS subset used for direct-to-phone publishing.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSProvider publishes transactional SMS through AWS SNS.
type SNSProvider struct {
	client   SNSService
	senderID string
}

func NewSNSProvider(client SNSService, senderID string) *SNSProvider {
	return &SNSProvider{client: client, senderID: senderID}
}

func (p *SNSProvider) SendSMS(ctx context.Context, to, message string) (string, error) {
	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if p.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(p.senderID)}
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(to),
		Message:           aws.String(message),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}

// NormalizePhone rewrites local numbers to E.164 using countryCode:
// a leading 0 is replaced by the code, and numbers starting with 7 or 1 get
// the code prepended. Numbers already starting with + are unchanged.
func NormalizePhone(phone, countryCode string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	switch {
	case strings.HasPrefix(phone, "0"):
		return countryCode + phone[1:]
	case strings.HasPrefix(phone, "7"), strings.HasPrefix(phone, "1"):
		return countryCode + phone
	}
	return phone
}

type SMSSenderConfig struct {
	CountryCode   string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// SMSSender delivers Messages as SMS. A nil provider means the channel is
// not configured.
type SMSSender struct {
	deliverer
	provider    SMSProvider
	countryCode string
	limiter     *rate.Limiter
}

func NewSMSSender(provider SMSProvider, ledger Ledger, cfg SMSSenderConfig, log logger.Logger) *SMSSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &SMSSender{
		deliverer: deliverer{
			channel: models.ChannelSMS,
			ledger:  ledger,
			timeout: cfg.Timeout,
			logger:  log.Named("sms"),
			now:     time.Now,
		},
		provider:    provider,
		countryCode: cfg.CountryCode,
		limiter:     rate.NewLimiter(limit, burst),
	}
}

func (s *SMSSender) Channel() models.Channel { return models.ChannelSMS }

func (s *SMSSender) Configured() bool { return s.provider != nil }

func (s *SMSSender) Send(ctx context.Context, msg Message) Result {
	if !s.Configured() {
		return s.fail(ctx, msg, "SMS service not configured")
	}

	to := NormalizePhone(msg.To, s.countryCode)
	if to == "" {
		return s.fail(ctx, msg, "recipient phone number is empty")
	}

	return s.deliver(ctx, msg, func(ctx context.Context) (string, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
		return s.provider.SendSMS(ctx, to, msg.Body)
	})
}

package notification

import (
	"context"
	"time"

	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the SES subset used for sending.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailSender delivers Messages through SES with a plain-text body and an
// optional HTML alternative.
type EmailSender struct {
	deliverer
	client SESService
	from   string
}

func NewEmailSender(client SESService, from string, ledger Ledger, timeout time.Duration, log logger.Logger) *EmailSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EmailSender{
		deliverer: deliverer{
			channel: models.ChannelEmail,
			ledger:  ledger,
			timeout: timeout,
			logger:  log.Named("email"),
			now:     time.Now,
		},
		client: client,
		from:   from,
	}
}

func (s *EmailSender) Channel() models.Channel { return models.ChannelEmail }

func (s *EmailSender) Configured() bool { return s.client != nil && s.from != "" }

func (s *EmailSender) Send(ctx context.Context, msg Message) Result {
	if !s.Configured() {
		return s.fail(ctx, msg, "Email service not configured")
	}
	if msg.To == "" {
		return s.fail(ctx, msg, "recipient email address is empty")
	}

	body := &types.Body{Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")}}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}

	return s.deliver(ctx, msg, func(ctx context.Context) (string, error) {
		out, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
			Destination: &types.Destination{ToAddresses: []string{msg.To}},
			Message: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
			Source: aws.String(s.from),
		})
		if err != nil {
			return "", err
		}
		return aws.ToString(out.MessageId), nil
	})
}

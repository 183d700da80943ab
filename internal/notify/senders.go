package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
)

// LogSender writes notifications to the log. Used in development.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, event Event) error {
	log.Info().
		Str("app_id", event.ApplicationID.String()).
		Str("email", event.Email).
		Str("outcome", string(event.Outcome)).
		Str("doc_type", string(event.DocumentType)).
		Str("reason", event.Reason).
		Str("subject", event.Subject()).
		Msg("notification")
	return nil
}

// SESAPI is the subset of the SES v2 client used by SESSender.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender emails the applicant's contact address.
type SESSender struct {
	client SESAPI
	from   string
}

func NewSESSender(client SESAPI, from string) *SESSender {
	return &SESSender{client: client, from: from}
}

func (s *SESSender) Send(ctx context.Context, event Event) error {
	if event.Email == "" {
		return fmt.Errorf("%w: no recipient for application %s", ErrPermanent, event.ApplicationID)
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &sestypes.Destination{
			ToAddresses: []string{event.Email},
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(event.Subject()), Charset: aws.String("UTF-8")},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(event.Body()), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []sestypes.MessageTag{
			{Name: aws.String("outcome"), Value: aws.String(string(event.Outcome))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Debug().Str("message_id", aws.ToString(out.MessageId)).Str("app_id", event.ApplicationID.String()).Msg("email sent")
	return nil
}

// SNSAPI is the subset of the SNS client used by SNSSender.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender publishes events as JSON to a topic for downstream subscribers.
type SNSSender struct {
	client   SNSAPI
	topicARN string
}

func NewSNSSender(client SNSAPI, topicARN string) *SNSSender {
	return &SNSSender{client: client, topicARN: topicARN}
}

func (s *SNSSender) Send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: failed to encode event: %v", ErrPermanent, err)
	}

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String(snsSubject(event.Subject())),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"outcome": {DataType: aws.String("String"), StringValue: aws.String(string(event.Outcome))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	log.Debug().Str("message_id", aws.ToString(out.MessageId)).Str("app_id", event.ApplicationID.String()).Msg("notification published")
	return nil
}

const snsSubjectMax = 100

// snsSubject folds s into what SNS accepts as a subject: printable ASCII,
// at most 100 characters. Accents are dropped ("Fundación" becomes
// "Fundacion"), other runes become spaces.
func snsSubject(s string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if r < 0x20 || r >= unicode.MaxASCII {
			r = ' '
		}
		if b.Len() == snsSubjectMax {
			break
		}
		b.WriteRune(r)
	}

	subject := strings.TrimSpace(b.String())
	if subject == "" {
		return "NGO verification update"
	}
	return subject
}

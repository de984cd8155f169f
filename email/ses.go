package email

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SES is an AWS-backed transport. Outbound mail goes through SESv2; inbound
// mail is read from an S3 bucket populated by an SES receipt rule, with the
// object key serving as the message id. Marking a message processed moves its
// object from the inbound prefix to the processed prefix.
type SES struct {
	ses             *sesv2.Client
	s3              *s3.Client
	sender          string
	bucket          string
	inboundPrefix   string
	processedPrefix string
}

// SESOption configures an SES transport.
type SESOption func(*SES)

// WithInboundBucket enables receiving from the given S3 bucket.
func WithInboundBucket(bucket string) SESOption {
	return func(t *SES) {
		t.bucket = bucket
	}
}

// WithInboundPrefix overrides the S3 prefix SES receipt rules write to.
// Default "inbound/".
func WithInboundPrefix(prefix string) SESOption {
	return func(t *SES) {
		t.inboundPrefix = prefix
	}
}

// WithProcessedPrefix overrides the S3 prefix processed mail is moved to.
// Default "processed/".
func WithProcessedPrefix(prefix string) SESOption {
	return func(t *SES) {
		t.processedPrefix = prefix
	}
}

// NewSES creates an SES transport. The sender address is used for mail whose
// SendRequest leaves From empty. Without WithInboundBucket the transport is
// send-only and Receive returns ErrReceiveUnsupported.
func NewSES(cfg aws.Config, sender string, opts ...SESOption) *SES {
	t := &SES{
		ses:             sesv2.NewFromConfig(cfg),
		s3:              s3.NewFromConfig(cfg),
		sender:          sender,
		inboundPrefix:   "inbound/",
		processedPrefix: "processed/",
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send delivers an email through SESv2 and returns the SES message id.
func (t *SES) Send(ctx context.Context, req SendRequest) (string, error) {
	from := req.From
	if from == "" {
		from = t.sender
	}

	body := &sestypes.Body{
		Text: &sestypes.Content{Data: aws.String(req.BodyText)},
	}
	if req.BodyHTML != "" {
		body.Html = &sestypes.Content{Data: aws.String(req.BodyHTML)}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &sestypes.Destination{ToAddresses: req.To},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(req.Subject)},
				Body:    body,
			},
		},
	}
	if req.ReplyTo != "" {
		input.ReplyToAddresses = []string{req.ReplyTo}
	}

	out, err := t.ses.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// Receive lists unprocessed objects under the inbound prefix and parses each
// as an RFC 5322 message. Objects that fail to parse are skipped; they stay
// in place for manual inspection.
func (t *SES) Receive(ctx context.Context, mailbox string) ([]Message, error) {
	if t.bucket == "" {
		return nil, ErrReceiveUnsupported
	}

	prefix := t.inboundPrefix
	if mailbox != "" {
		prefix = mailbox
	}

	var keys []string
	var token *string
	for {
		page, err := t.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(t.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 list inbound: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(page.IsTruncated) {
			break
		}
		token = page.NextContinuationToken
	}
	sort.Strings(keys)

	messages := make([]Message, 0, len(keys))
	for _, key := range keys {
		msg, err := t.fetchMessage(ctx, key)
		if err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// MarkProcessed moves the message's object from the inbound prefix to the
// processed prefix.
func (t *SES) MarkProcessed(ctx context.Context, messageID string) error {
	if t.bucket == "" {
		return ErrReceiveUnsupported
	}

	dest := t.processedPrefix + strings.TrimPrefix(messageID, t.inboundPrefix)
	_, err := t.s3.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(t.bucket),
		CopySource: aws.String(t.bucket + "/" + messageID),
		Key:        aws.String(dest),
	})
	if err != nil {
		return fmt.Errorf("s3 copy to processed: %w", err)
	}

	_, err = t.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(messageID),
	})
	if err != nil {
		return fmt.Errorf("s3 delete inbound: %w", err)
	}
	return nil
}

func (t *SES) fetchMessage(ctx context.Context, key string) (Message, error) {
	out, err := t.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Message{}, fmt.Errorf("s3 get %q: %w", key, err)
	}
	defer out.Body.Close()

	parsed, err := mail.ReadMessage(out.Body)
	if err != nil {
		return Message{}, fmt.Errorf("parse %q: %w", key, err)
	}

	body, err := io.ReadAll(parsed.Body)
	if err != nil {
		return Message{}, fmt.Errorf("read body of %q: %w", key, err)
	}

	msg := Message{
		MessageID: key,
		From:      parsed.Header.Get("From"),
		Subject:   parsed.Header.Get("Subject"),
		BodyText:  string(body),
		Headers:   map[string]string{},
	}
	for name, values := range parsed.Header {
		if len(values) > 0 {
			msg.Headers[name] = values[0]
		}
	}
	if addrs, err := parsed.Header.AddressList("To"); err == nil {
		for _, a := range addrs {
			msg.To = append(msg.To, a.Address)
		}
	}
	if date, err := parsed.Header.Date(); err == nil {
		msg.ReceivedAt = date
	}
	return msg, nil
}

package notify

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNS limits subjects to 100 characters
const maxSubjectLength = 100

// SNSAPI is the subset of the SNS client used by SNSNotifier
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes notifications to an SNS topic
type SNSNotifier struct {
	client   SNSAPI
	topicARN string
}

// NewSNSNotifier creates a notifier for topicARN
func NewSNSNotifier(client SNSAPI, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN}
}

// NewSNSNotifierFromConfig builds the SNS client from an AWS config
func NewSNSNotifierFromConfig(cfg aws.Config, topicARN string) *SNSNotifier {
	return NewSNSNotifier(sns.NewFromConfig(cfg), topicARN)
}

// Send implements Notifier. Severity and metadata become message attributes.
func (s *SNSNotifier) Send(ctx context.Context, n Notification) error {
	subject := n.Subject
	if len(subject) > maxSubjectLength {
		subject = subject[:maxSubjectLength]
	}

	attrs := map[string]types.MessageAttributeValue{
		"severity": stringAttribute(string(n.Severity)),
	}
	keys := make([]string, 0, len(n.Metadata))
	for k := range n.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if n.Metadata[k] == "" {
			continue
		}
		attrs[k] = stringAttribute(n.Metadata[k])
	}

	_, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(s.topicARN),
		Subject:           aws.String(subject),
		Message:           aws.String(n.Body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

func stringAttribute(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}

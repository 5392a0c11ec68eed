// Package sns publishes article events to an AWS SNS topic.
package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// client is the subset of *sns.Client in use.
type client interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config locates the topic. Static keys are optional; the default AWS
// credential chain applies when they are blank.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	TopicARN        string
}

// Publisher sends JSON events to one topic.
type Publisher struct {
	topicARN string
	client   client
}

// New loads AWS configuration and builds an SNS client.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.TopicARN == "" {
		return nil, fmt.Errorf("sns topic arn is required")
	}
	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Publisher{topicARN: cfg.TopicARN, client: sns.NewFromConfig(awsCfg)}, nil
}

// Publish sends payload as the message body with the event name as an attribute.
func (p *Publisher) Publish(ctx context.Context, event string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(event)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("publish to sns: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// Package publisher selects where article events are sent.
package publisher

import (
	"context"
	"fmt"

	"github.com/JakeFAU/chiripo-news/internal/config"
	"github.com/JakeFAU/chiripo-news/internal/news"
	"github.com/JakeFAU/chiripo-news/internal/publisher/memory"
	"github.com/JakeFAU/chiripo-news/internal/publisher/pubsub"
	"github.com/JakeFAU/chiripo-news/internal/publisher/sns"
	"github.com/JakeFAU/chiripo-news/internal/publisher/sqs"
)

// Nop drops every event.
type Nop struct{}

// Publish implements news.Publisher.
func (Nop) Publish(context.Context, string, any) (string, error) { return "", nil }

// New builds the configured publisher.
func New(ctx context.Context, cfg config.PublisherConfig) (news.Publisher, error) {
	switch cfg.Backend {
	case "", "none":
		return Nop{}, nil
	case "memory":
		return memory.New(), nil
	case "pubsub":
		return pubsub.New(ctx, cfg.ProjectID, cfg.Topic)
	case "sns":
		return sns.New(ctx, sns.Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			TopicARN:        cfg.AWS.TopicARN,
		})
	case "sqs":
		return sqs.New(ctx, sqs.Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			QueueURL:        cfg.AWS.QueueURL,
		})
	default:
		return nil, fmt.Errorf("publisher backend %q is not supported", cfg.Backend)
	}
}

// internal/events/publisher.go

// Package events delivers notification events to the external dispatcher over
// SNS. The engine treats delivery as best-effort; a committed state change is
// never rolled back because its event failed to publish.
package events

import (
	"context"

	awsclient "camp-lifecycle/internal/common/aws"
	"camp-lifecycle/internal/common/config"
	apperrors "camp-lifecycle/internal/common/errors"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/models"
)

// Topic is the SNS surface the publisher needs. *aws.SNSClient satisfies it.
type Topic interface {
	PublishJSON(ctx context.Context, topicARN, eventKey string, payload interface{}) (string, error)
}

// LocalSubscriber receives events in-process, in addition to SNS delivery.
// The automation dispatcher registers here so event-triggered emails fire
// without a round trip through the broker.
type LocalSubscriber interface {
	HandleEvent(ctx context.Context, event models.NotificationEvent)
}

// Publisher fans notification events out to SNS and local subscribers.
type Publisher struct {
	topic       Topic
	cfg         config.EventsConfig
	subscribers []LocalSubscriber
	logger      logger.Logger
}

func NewPublisher(topic Topic, cfg config.EventsConfig, log logger.Logger) *Publisher {
	return &Publisher{topic: topic, cfg: cfg, logger: log}
}

// Subscribe registers an in-process listener. Not safe to call after the
// server starts serving.
func (p *Publisher) Subscribe(sub LocalSubscriber) {
	p.subscribers = append(p.subscribers, sub)
}

// Publish delivers one event. Local subscribers always run; SNS delivery is
// attempted only when enabled and configured.
func (p *Publisher) Publish(ctx context.Context, event models.NotificationEvent) error {
	for _, sub := range p.subscribers {
		sub.HandleEvent(ctx, event)
	}

	if !p.cfg.Enabled || p.cfg.TopicARN == "" {
		p.logger.WithFields(map[string]interface{}{
			"event":          event.Key,
			"application_id": event.ApplicationID,
		}).Debug("Event publishing disabled, delivered locally only", nil)
		return nil
	}

	messageID, err := p.topic.PublishJSON(ctx, p.cfg.TopicARN, event.Key, event)
	if err != nil {
		return apperrors.NewEventPublishFailedError(event.Key, err)
	}

	p.logger.WithFields(map[string]interface{}{
		"event":          event.Key,
		"application_id": event.ApplicationID,
		"message_id":     messageID,
	}).Info("Notification event published", nil)
	return nil
}

var _ Topic = (*awsclient.SNSClient)(nil)

package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubPublisher delivers completion events over Google Cloud Pub/Sub.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSub wraps a topic handle.
func NewPubSub(topic *pubsub.Topic) *PubSubPublisher {
	return &PubSubPublisher{topic: topic}
}

// Publish marshals the event to JSON and publishes it.
func (p *PubSubPublisher) Publish(ctx context.Context, event Completion) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal completion event: %w", err)
	}
	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"run_id": event.RunID},
	}
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish completion event: %w", err)
	}
	return id, nil
}

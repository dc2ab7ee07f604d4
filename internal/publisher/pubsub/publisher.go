// Package pubsub announces finished archival runs on a Google Cloud Pub/Sub
// topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Config names the topic to publish to.
type Config struct {
	Project string
	Topic   string
	// Attributes are attached to every message.
	Attributes map[string]string
}

// Publisher wraps a Pub/Sub topic handle.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	attrs  map[string]string
}

// New creates a Publisher for an existing topic handle.
func New(topic *pubsub.Topic, attrs map[string]string) *Publisher {
	return &Publisher{topic: topic, attrs: attrs}
}

// Open connects to Pub/Sub and verifies the topic exists. Authentication
// uses Application Default Credentials unless opts override it.
func Open(ctx context.Context, cfg Config, logger *zap.Logger, opts ...option.ClientOption) (*Publisher, error) {
	if cfg.Project == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.Project, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.Topic)
	exists, err := topic.Exists(ctx)
	if err == nil && !exists {
		err = fmt.Errorf("pubsub topic '%s' does not exist in project '%s'", cfg.Topic, cfg.Project)
	}
	if err != nil {
		topic.Stop()
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client after topic check", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check pubsub topic: %w", err)
	}
	return &Publisher{client: client, topic: topic, attrs: cfg.Attributes}, nil
}

// Publish marshals the payload to JSON, publishes it and waits for the
// server to acknowledge it.
func (p *Publisher) Publish(ctx context.Context, payload any) (string, error) {
	if p == nil || p.topic == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{Data: data}
	if len(p.attrs) > 0 {
		msg.Attributes = make(map[string]string, len(p.attrs))
		for k, v := range p.attrs {
			msg.Attributes[k] = v
		}
	}
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and releases the client when Open created
// it.
func (p *Publisher) Close() error {
	if p == nil || p.topic == nil {
		return nil
	}
	p.topic.Stop()
	if p.client == nil {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

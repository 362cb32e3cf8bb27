// Package events publishes task lifecycle events for realtime consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

const (
	TypeTaskCreated = "taskCreated"
	TypeTaskUpdated = "taskUpdated"
	TypeTaskDeleted = "taskDeleted"
)

// Event is the payload fanned out to subscribers of the task events topic.
type Event struct {
	Type       string    `json:"type"`
	TaskID     string    `json:"taskId"`
	CompanyID  string    `json:"companyId"`
	Recipients []string  `json:"recipients"`
	Status     string    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PubSubPublisher pushes events to a Google Cloud Pub/Sub topic.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

func NewPubSubPublisher(ctx context.Context, projectID, topicID, credentialsFile string) (*PubSubPublisher, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	log.Printf("[Events] Publishing task events to topic %s", topicID)
	return &PubSubPublisher{
		client: client,
		topic:  client.Topic(topicID),
	}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":   event.Type,
			"taskId": event.TaskID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

// Nop discards every event. Used when no topic is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

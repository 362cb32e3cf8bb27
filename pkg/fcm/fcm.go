package fcm

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// MaxBatchSize is the largest number of messages FCM accepts in one SendEach call.
const MaxBatchSize = 500

// Client wraps Firebase Cloud Messaging functionality
type Client struct {
	messagingClient *messaging.Client
}

// NewClient creates a new FCM client using the provided credentials file
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	log.Println("[FCM] Client initialized successfully")
	return &Client{
		messagingClient: messagingClient,
	}, nil
}

// Message is a single device push.
type Message struct {
	Token     string
	Title     string
	Body      string
	Sound     string
	ChannelID string
	Data      map[string]string
}

// Failure describes one message the provider rejected.
type Failure struct {
	Token        string
	Err          error
	Unregistered bool
}

// BatchResult summarises one SendBatch call.
type BatchResult struct {
	SuccessCount int
	FailureCount int
	Failures     []Failure
}

// SendBatch delivers up to MaxBatchSize messages in one provider request.
func (c *Client) SendBatch(ctx context.Context, msgs []Message) (*BatchResult, error) {
	if len(msgs) == 0 {
		return &BatchResult{}, nil
	}
	if len(msgs) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds FCM limit of %d", len(msgs), MaxBatchSize)
	}

	out := make([]*messaging.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessagingMessage(m))
	}

	response, err := c.messagingClient.SendEach(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("failed to send FCM batch: %w", err)
	}

	result := &BatchResult{
		SuccessCount: response.SuccessCount,
		FailureCount: response.FailureCount,
	}
	for i, resp := range response.Responses {
		if resp.Success {
			continue
		}
		result.Failures = append(result.Failures, Failure{
			Token:        msgs[i].Token,
			Err:          resp.Error,
			Unregistered: messaging.IsRegistrationTokenNotRegistered(resp.Error) || messaging.IsUnregistered(resp.Error),
		})
	}

	log.Printf("[FCM] Batch sent: %d success, %d failures", result.SuccessCount, result.FailureCount)
	return result, nil
}

func toMessagingMessage(m Message) *messaging.Message {
	return &messaging.Message{
		Token: m.Token,
		Notification: &messaging.Notification{
			Title: m.Title,
			Body:  m.Body,
		},
		Data: m.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:     m.Sound,
				ChannelID: m.ChannelID,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: m.Sound,
				},
			},
		},
	}
}

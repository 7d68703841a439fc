// Package notify publishes registration lifecycle changes on Redis pub/sub
// so operator tooling can refresh without polling.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "regdesk/pkg/domain"
)

const DefaultChannel = "regdesk:registration"

// Event names published on the channel.
const (
	EventSubmitted = "submitted"
	EventApproved  = "approved"
	EventRejected  = "rejected"
)

// Message is the JSON document published for each lifecycle change.
type Message struct {
	Event     string    `json:"event"`
	RequestID string    `json:"request_id"`
	At        time.Time `json:"at"`
}

// RedisNotifier publishes Messages on a single channel.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisNotifier(client redis.UniversalClient, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, event string, requestID id.RequestID, at time.Time) error {
	payload, err := json.Marshal(Message{Event: event, RequestID: requestID.String(), At: at.UTC()})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

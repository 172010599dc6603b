// Package progressbus implements the per-job pub/sub channel spec §4.5
// describes, bridging pipeline stages to SSE subscribers over Redis —
// grounded on the teacher's redis/go-redis/v9 usage in services/memory
// (ShortTermMemoryServiceImpl, WorkingMemoryServiceImpl).
package progressbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventType is one of the four named SSE events spec §4.5/§6 define.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
	EventEnd      EventType = "end"
)

// Event is the JSON-encoded record published on a job's channel.
type Event struct {
	Event   EventType              `json:"event"`
	Payload map[string]interface{} `json:"payload"`
}

func channelName(jobID string) string {
	return fmt.Sprintf("job:progress:%s", jobID)
}

// Bus publishes and subscribes to job progress channels.
type Bus struct {
	client *redis.Client
}

func NewBus(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// Publish emits an event on the job's channel. Events within a single job
// are delivered in publisher order (spec §4.5 "Ordering"); across jobs no
// ordering is promised.
func (b *Bus) Publish(ctx context.Context, jobID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	return b.client.Publish(ctx, channelName(jobID), data).Err()
}

// Subscription wraps a redis.PubSub for one job's channel.
type Subscription struct {
	pubsub *redis.PubSub
}

func (b *Bus) Subscribe(ctx context.Context, jobID string) *Subscription {
	return &Subscription{pubsub: b.client.Subscribe(ctx, channelName(jobID))}
}

// Next polls for the next message with the given timeout, returning
// (nil, nil) on a timeout so callers can emit a keep-alive, matching spec
// §4.5's "polls the channel every ~1s, emits a keep-alive every ~8s".
func (s *Subscription) Next(ctx context.Context, timeout time.Duration) (*Event, error) {
	msgCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := s.pubsub.ReceiveMessage(msgCtx)
	if err != nil {
		if err == context.DeadlineExceeded {
			return nil, nil
		}
		return nil, err
	}

	var event Event
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		return nil, fmt.Errorf("unmarshal progress event: %w", err)
	}
	return &event, nil
}

// Close unsubscribes; pipeline progress is unaffected since the Job Ledger
// remains the source of truth (spec §4.5 "Cancellation").
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}

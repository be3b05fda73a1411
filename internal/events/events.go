package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// DecisionChannel carries one JSON Decision per resolved registration.
// Clients waiting on the pending-approval page may subscribe to it
// instead of polling the status endpoint.
const DecisionChannel = "registrations.decided"

type Decision struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	Status          string `json:"status"`
	RejectionReason string `json:"rejectionReason,omitempty"`
}

// Publisher announces admin decisions over redis. A nil Publisher or a
// Publisher without a client is a no-op, so decisions never depend on
// redis being configured.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) PublishDecision(ctx context.Context, decision Decision) error {
	if p == nil || p.client == nil {
		return nil
	}
	payload, err := json.Marshal(decision)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, DecisionChannel, payload).Err()
}

// Subscribe streams decisions published on DecisionChannel until ctx is
// cancelled. Returns nil when redis is not configured; callers fall
// back to polling.
func (p *Publisher) Subscribe(ctx context.Context) <-chan Decision {
	if p == nil || p.client == nil {
		return nil
	}
	sub := p.client.Subscribe(ctx, DecisionChannel)
	out := make(chan Decision)

	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var decision Decision
				if err := json.Unmarshal([]byte(msg.Payload), &decision); err != nil {
					log.Printf("decision event decode: %v", err)
					continue
				}
				select {
				case out <- decision:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

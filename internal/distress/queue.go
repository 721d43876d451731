package distress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// signalEnvelope is the wire format for distress signals crossing the queue
// between the ingestion process and the assessment worker.
type signalEnvelope struct {
	ID         string    `json:"id"`
	Signal     Signal    `json:"signal"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func encodeSignal(sig Signal) (string, error) {
	env := signalEnvelope{
		ID:         uuid.NewString(),
		Signal:     sig,
		EnqueuedAt: time.Now(),
	}
	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("distress: failed to encode signal: %w", err)
	}
	return string(body), nil
}

// Publisher forwards confirmed distress signals onto the queue so the
// assessment worker picks them up out of the session's hot path.
type Publisher struct {
	queue queueClient
}

// NewPublisher wraps a queue for signal publication.
func NewPublisher(queue queueClient) *Publisher {
	if queue == nil {
		panic("distress: queue cannot be nil")
	}
	return &Publisher{queue: queue}
}

// Publish enqueues one signal.
func (p *Publisher) Publish(ctx context.Context, sig Signal) error {
	body, err := encodeSignal(sig)
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("distress: failed to publish signal: %w", err)
	}
	return nil
}

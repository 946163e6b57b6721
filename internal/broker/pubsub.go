// Package broker carries event envelopes between the persist step and the
// fan-out step over NATS JetStream.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Etchbanna/Kallemny-Production/internal/model"
)

// EventPublisher satisfies the hub's Publisher interface.
type EventPublisher struct {
	js jetstream.JetStream
}

func NewEventPublisher(js jetstream.JetStream) *EventPublisher {
	return &EventPublisher{js: js}
}

func (p *EventPublisher) Publish(ctx context.Context, evt model.Event) error {
	if p.js == nil {
		return fmt.Errorf("jetstream interface is nil")
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("could not encode event to JSON: %w", err)
	}

	_, err = p.js.Publish(ctx,
		SubjectFanout,
		data,
		jetstream.WithMsgID(uuid.NewString()),
	)
	if err != nil {
		return fmt.Errorf("failed to publish to stream [%s]: %w", SubjectFanout, err)
	}

	return nil
}

// Subscribe consumes event envelopes from the stream and feeds them into
// the hub's delivery channel until ctx is cancelled.
func Subscribe(ctx context.Context, stream jetstream.Stream, deliver chan<- model.Event) error {
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{})
	if err != nil {
		return fmt.Errorf("failed to create or update consumer: %w", err)
	}

	consumeHandler := func(msg jetstream.Msg) {
		var evt model.Event

		if err := json.Unmarshal(msg.Data(), &evt); err != nil {
			msg.Term() //nolint:errcheck
			slog.Warn("could not decode event envelope", "error", err)
			return
		}

		msg.Ack() //nolint:errcheck

		select {
		case deliver <- evt:
		case <-ctx.Done():
		}
	}

	optErrHandler := jetstream.ConsumeErrHandler(func(cc jetstream.ConsumeContext, err error) {
		slog.Warn("consumer error", "error", err)
	})

	consumeCtx, err := consumer.Consume(consumeHandler, optErrHandler)
	if err != nil {
		return fmt.Errorf("failed to start consuming events: %w", err)
	}

	go func() {
		<-ctx.Done()
		consumeCtx.Drain()
	}()

	return nil
}

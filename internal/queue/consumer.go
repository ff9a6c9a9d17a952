package queue

import (
	"context"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivered message. It must not return; failures are
// the handler's responsibility to log. The consumer loop survives any single
// message.
type Handler func(ctx context.Context, routingKey string, body []byte)

// Consumer reads messages from a durable queue bound to the topic exchange.
// Prefetch is 1, so messages are handled one at a time per consumer.
type Consumer struct {
	channel *amqp.Channel
	queue   string
	handler Handler
}

// NewConsumer opens a channel, declares the queue and binds the routing keys.
func NewConsumer(conn *amqp.Connection, exchange, queue string, routingKeys []string, handler Handler) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	for _, key := range routingKeys {
		if err := ch.QueueBind(queue, key, exchange, false, nil); err != nil {
			return nil, fmt.Errorf("failed to bind %s to %s: %w", queue, key, err)
		}
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	return &Consumer{channel: ch, queue: queue, handler: handler}, nil
}

// Start consumes until the context is cancelled or the channel closes.
// Messages are acked after handling regardless of handler outcome: there is
// no retry or dead-lettering, a failed determination is lost unless replayed.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", c.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("[QUEUE] consumer shutting down")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				log.Println("[QUEUE] channel closed")
				return nil
			}

			c.handler(ctx, msg.RoutingKey, msg.Body)

			if err := msg.Ack(false); err != nil {
				log.Printf("[QUEUE] failed to ack message: %v", err)
			}
		}
	}
}

// Close releases the channel.
func (c *Consumer) Close() error {
	return c.channel.Close()
}

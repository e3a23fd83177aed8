package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// wireMessage is the cross-instance envelope. Unlike Message, the target
// user travels in the payload.
type wireMessage struct {
	Type   string          `json:"type"`
	UserID string          `json:"userId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// AMQPPublisher fans events out to every service instance through a
// fanout exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQPPublisher connects and declares the fanout exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, channel: channel, exchange: exchange}, nil
}

// Publish sends a message to all instances.
func (p *AMQPPublisher) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	body, err := json.Marshal(wireMessage{Type: msg.Type, UserID: msg.UserID, Data: data})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// AMQPConsumer receives fanned-out events and replays them into the local
// hub. Each instance binds its own exclusive queue.
type AMQPConsumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	hub      *Hub
	logger   *slog.Logger
	exchange string
}

// NewAMQPConsumer connects, declares the exchange and binds a fresh
// server-named queue to it.
func NewAMQPConsumer(url, exchange string, hub *Hub, logger *slog.Logger) (*AMQPConsumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	queue, err := channel.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := channel.QueueBind(queue.Name, "", exchange, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	return &AMQPConsumer{conn: conn, channel: channel, queue: queue.Name, hub: hub, logger: logger, exchange: exchange}, nil
}

// Run consumes events until ctx is cancelled or the channel closes.
func (c *AMQPConsumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(c.queue, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume queue: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("amqp deliveries channel closed")
			}
			var wire wireMessage
			if err := json.Unmarshal(delivery.Body, &wire); err != nil {
				c.logger.Warn("discarding malformed event", "error", err)
				continue
			}
			c.hub.Publish(Message{Type: wire.Type, UserID: wire.UserID, Data: wire.Data})
		}
	}
}

// Close releases the channel and connection.
func (c *AMQPConsumer) Close() error {
	if err := c.channel.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/streadway/amqp"
)

// Publisher is the subset of *amqp.Channel used by the forwarder.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Shareable is implemented by records that have a form safe to publish
// outside the process. Records that do not implement it are forwarded
// without a body.
type Shareable interface {
	Shareable() any
}

// AMQPForwarder republishes bus changes to a topic exchange so other services
// can consume them. Routing key is "<table>.<type>", e.g. "reports.insert".
type AMQPForwarder struct {
	pub      Publisher
	exchange string
}

func NewAMQPForwarder(pub Publisher, exchange string) *AMQPForwarder {
	return &AMQPForwarder{pub: pub, exchange: exchange}
}

// RoutingKey returns the routing key for a change.
func RoutingKey(c Change) string {
	return fmt.Sprintf("%s.%s", c.Table, strings.ToLower(string(c.Type)))
}

// Handle is a Handler suitable for Bus.OnEntityChanged.
func (f *AMQPForwarder) Handle(ctx context.Context, c Change) error {
	out := c
	out.Record = nil
	if s, ok := c.Record.(Shareable); ok {
		out.Record = s.Shareable()
	}
	body, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("events: marshal change: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    c.OccurredAt,
		MessageId:    c.EntityID,
	}
	if err := f.pub.Publish(f.exchange, RoutingKey(c), false, false, msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", RoutingKey(c), err)
	}
	return nil
}

// DialAMQP connects to RabbitMQ and declares a durable topic exchange.
// The caller owns both the connection and the channel.
func DialAMQP(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("events: connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("events: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("events: declare exchange: %w", err)
	}
	return conn, ch, nil
}

package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Exchange is the topic exchange wizard events are published to.
const Exchange = "wizard.events"

var errNotConnected = errors.New("RabbitMQ channel not initialized")

// EventHandler processes one delivered message body.
type EventHandler func(ctx context.Context, body []byte) error

// RabbitMQ provides message bus functionality
type RabbitMQ struct {
	url      string
	consumer string
	logger   *zap.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NewRabbitMQ prepares a bus client. consumer prefixes the queues this
// process declares so several services can bind the same routing key.
func NewRabbitMQ(url, consumer string, logger *zap.Logger) *RabbitMQ {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RabbitMQ{url: url, consumer: consumer, logger: logger.Named("rabbitmq")}
}

// Connect establishes connection to RabbitMQ
func (r *RabbitMQ) Connect() error {
	conn, err := amqp091.Dial(r.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		Exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.channel = ch
	r.mu.Unlock()

	r.logger.Info("connected to RabbitMQ", zap.String("exchange", Exchange))
	return nil
}

// Publish sends body with routingKey = event type.
func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channel == nil {
		return errNotConnected
	}

	err := r.channel.PublishWithContext(
		ctx,
		Exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", routingKey, err)
	}

	r.logger.Debug("published event", zap.String("routing_key", routingKey))
	return nil
}

// Subscribe consumes routingKey from a durable queue and acks each message
// the handler accepts. Rejected messages are requeued.
func (r *RabbitMQ) Subscribe(routingKey string, handler EventHandler) error {
	r.mu.Lock()
	ch := r.channel
	r.mu.Unlock()
	if ch == nil {
		return errNotConnected
	}

	queueName := fmt.Sprintf("%s.%s", r.consumer, routingKey)

	queue, err := ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	err = ch.QueueBind(
		queue.Name, // queue name
		routingKey, // routing key
		Exchange,   // exchange
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.Consume(
		queue.Name, // queue
		"",         // consumer tag
		false,      // auto-ack
		false,      // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}

	go func() {
		log := r.logger.With(zap.String("routing_key", routingKey), zap.String("queue", queueName))
		log.Info("subscribed")

		for msg := range msgs {
			if err := handler(context.Background(), msg.Body); err != nil {
				log.Warn("failed to process event", zap.Error(err))
				msg.Nack(false, true)
				continue
			}
			msg.Ack(false)
		}
		log.Info("delivery channel closed")
	}()

	return nil
}

// Close closes the RabbitMQ connection
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channel != nil {
		r.channel.Close()
		r.channel = nil
	}
	if r.conn != nil {
		err := r.conn.Close()
		r.conn = nil
		return err
	}
	return nil
}

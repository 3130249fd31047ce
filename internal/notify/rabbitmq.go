package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitQueue persists messages in a durable RabbitMQ queue. Messages that
// exhaust their retry budget are nacked into "<queue>.dead".
type RabbitQueue struct {
	conn   *amqp.Connection
	pubMu  sync.Mutex
	pubCh  *amqp.Channel
	queue  string
	sink   Sink
	policy RetryPolicy
}

func DialRabbit(url, queue string, sink Sink, policy RetryPolicy) (*RabbitQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	r := &RabbitQueue{conn: conn, pubCh: ch, queue: queue, sink: sink, policy: policy}
	if err := r.setupQueues(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *RabbitQueue) deadLetterExchange() string { return r.queue + "_dlx" }
func (r *RabbitQueue) deadLetterQueue() string    { return r.queue + ".dead" }

func (r *RabbitQueue) setupQueues() error {
	if err := r.pubCh.ExchangeDeclare(
		r.deadLetterExchange(),
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}

	if _, err := r.pubCh.QueueDeclare(
		r.deadLetterQueue(),
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-queue-type": "classic"},
	); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}

	if err := r.pubCh.QueueBind(r.deadLetterQueue(), r.deadLetterQueue(), r.deadLetterExchange(), false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}

	if _, err := r.pubCh.QueueDeclare(
		r.queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    r.deadLetterExchange(),
			"x-dead-letter-routing-key": r.deadLetterQueue(),
		},
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", r.queue, err)
	}
	return nil
}

func (r *RabbitQueue) Enqueue(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	return r.pubCh.PublishWithContext(ctx,
		"",
		r.queue,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			ContentType:  "application/json",
			MessageId:    msg.ID,
			Body:         body,
		},
	)
}

// Run consumes the queue until ctx is cancelled or the channel closes.
func (r *RabbitQueue) Run(ctx context.Context) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("rabbitmq qos: %w", err)
	}

	deliveries, err := ch.Consume(
		r.queue,
		"storefront-notify", // consumer tag
		false,               // auto-ack
		false,               // exclusive
		false,               // no-local
		false,               // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("rabbitmq consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("rabbitmq delivery channel closed")
			}
			r.handle(ctx, d)
		}
	}
}

func (r *RabbitQueue) handle(ctx context.Context, d amqp.Delivery) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[NOTIFY] [ERROR] panic while handling delivery: %v", rec)
			_ = d.Nack(false, false)
		}
	}()

	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		log.Printf("[NOTIFY] [ERROR] undecodable message %s: %v", d.MessageId, err)
		_ = d.Nack(false, false)
		return
	}

	if err := deliver(ctx, r.sink, msg, r.policy); err != nil {
		// requeue on shutdown, the next consumer starts a fresh budget
		requeue := errors.Is(err, ErrInterrupted)
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

func (r *RabbitQueue) Close() {
	if r.pubCh != nil {
		_ = r.pubCh.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

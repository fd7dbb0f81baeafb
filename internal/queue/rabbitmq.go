// Package queue carries deferred story jobs and incoming content change
// events over RabbitMQ. Persistent deliveries and manual acks give
// at-least-once execution across process restarts; idempotence is the
// engine's job.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"babbel_syncer/internal/domain"
)

type Config struct {
	URL        string
	Exchange   string
	JobsQueue  string
	JobsKey    string
	EventQueue string
	EventKey   string
}

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     Config
	logger  *slog.Logger
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	for _, binding := range []struct{ queue, key string }{
		{cfg.JobsQueue, cfg.JobsKey},
		{cfg.EventQueue, cfg.EventKey},
	} {
		q, err := ch.QueueDeclare(binding.queue, true, false, false, false, nil)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", binding.queue, err)
		}
		if err := ch.QueueBind(q.Name, binding.key, cfg.Exchange, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("bind queue %s: %w", binding.queue, err)
		}
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"jobs_queue", cfg.JobsQueue,
		"events_queue", cfg.EventQueue,
	)

	return &RabbitMQ{
		conn:    conn,
		channel: ch,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// PublishJob enqueues one deferred story job.
func (r *RabbitMQ) PublishJob(ctx context.Context, msg domain.JobMessage) error {
	if err := r.publish(ctx, r.cfg.JobsKey, msg); err != nil {
		return err
	}
	r.logger.Debug("published job", "job_id", msg.JobID, "item_id", msg.ItemID)
	return nil
}

// PublishEvent forwards a content change event to the sync engine's intake
// queue. Used by external trigger surfaces and by tests.
func (r *RabbitMQ) PublishEvent(ctx context.Context, ev domain.ChangeEvent) error {
	if err := r.publish(ctx, r.cfg.EventKey, ev); err != nil {
		return err
	}
	r.logger.Debug("published event", "item_id", ev.ItemID)
	return nil
}

func (r *RabbitMQ) publish(ctx context.Context, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(ctx, r.cfg.Exchange, key, false, false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// ConsumeJobs delivers job messages to handler until ctx is cancelled.
// The delivery is acked after the handler returns, regardless of outcome:
// failures are recorded in story state and retried by the next lifecycle
// event, not by broker redelivery.
func (r *RabbitMQ) ConsumeJobs(ctx context.Context, handler func(ctx context.Context, msg domain.JobMessage)) error {
	return r.consume(ctx, r.cfg.JobsQueue, func(body []byte) {
		var msg domain.JobMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			r.logger.Error("malformed job message", "error", err)
			return
		}
		handler(ctx, msg)
	})
}

// ConsumeEvents delivers content change events to handler until ctx is
// cancelled.
func (r *RabbitMQ) ConsumeEvents(ctx context.Context, handler func(ctx context.Context, ev domain.ChangeEvent)) error {
	return r.consume(ctx, r.cfg.EventQueue, func(body []byte) {
		var ev domain.ChangeEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			r.logger.Error("malformed change event", "error", err)
			return
		}
		handler(ctx, ev)
	})
}

func (r *RabbitMQ) consume(ctx context.Context, queueName string, handle func(body []byte)) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("consumer channel for %s closed", queueName)
			}
			handle(d.Body)
			if err := d.Ack(false); err != nil {
				r.logger.Error("ack failed", "queue", queueName, "error", err)
			}
		}
	}
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

//go:build integration

package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"babbel_syncer/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) newQueue(prefix string) *RabbitMQ {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   prefix + "-exchange",
		JobsQueue:  prefix + "-jobs",
		JobsKey:    prefix + "-jobs-key",
		EventQueue: prefix + "-events",
		EventKey:   prefix + "-events-key",
	}

	q, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	return q
}

func (s *RabbitMQIntegrationSuite) TestConnection() {
	q := s.newQueue("conn")
	s.NoError(q.Close())
}

func (s *RabbitMQIntegrationSuite) TestPublishJob_RoundTrip() {
	q := s.newQueue("job-roundtrip")
	defer q.Close()

	enqueued := time.Now().UTC().Truncate(time.Millisecond)
	err := q.PublishJob(s.ctx, domain.JobMessage{
		JobID:      "job-1",
		ItemID:     42,
		EnqueuedAt: enqueued,
	})
	s.NoError(err)

	received := make(chan domain.JobMessage, 1)
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() {
		_ = q.ConsumeJobs(ctx, func(_ context.Context, msg domain.JobMessage) {
			received <- msg
		})
	}()

	select {
	case msg := <-received:
		s.Equal("job-1", msg.JobID)
		s.Equal(int64(42), msg.ItemID)
		s.Equal(enqueued, msg.EnqueuedAt)
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for job message")
	}
}

func (s *RabbitMQIntegrationSuite) TestPublishEvent_RoundTrip() {
	q := s.newQueue("event-roundtrip")
	defer q.Close()

	err := q.PublishEvent(s.ctx, domain.ChangeEvent{
		ItemID:     7,
		OldEnabled: false,
		NewEnabled: true,
		OldStatus:  domain.ContentDraft,
		NewStatus:  domain.ContentPublished,
	})
	s.NoError(err)

	received := make(chan domain.ChangeEvent, 1)
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() {
		_ = q.ConsumeEvents(ctx, func(_ context.Context, ev domain.ChangeEvent) {
			received <- ev
		})
	}()

	select {
	case ev := <-received:
		s.Equal(int64(7), ev.ItemID)
		s.True(ev.NewEnabled)
		s.Equal(domain.ContentPublished, ev.NewStatus)
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for change event")
	}
}

func (s *RabbitMQIntegrationSuite) TestJobsAndEventsAreIsolated() {
	q := s.newQueue("isolation")
	defer q.Close()

	s.NoError(q.PublishEvent(s.ctx, domain.ChangeEvent{ItemID: 1}))
	s.NoError(q.PublishJob(s.ctx, domain.JobMessage{JobID: "only-job", ItemID: 2}))

	received := make(chan domain.JobMessage, 2)
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() {
		_ = q.ConsumeJobs(ctx, func(_ context.Context, msg domain.JobMessage) {
			received <- msg
		})
	}()

	select {
	case msg := <-received:
		s.Equal("only-job", msg.JobID)
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for job message")
	}

	select {
	case msg := <-received:
		s.Failf("unexpected delivery", "job %s", msg.JobID)
	case <-time.After(500 * time.Millisecond):
	}
}

func (s *RabbitMQIntegrationSuite) TestJobMessagePersistence() {
	q := s.newQueue("persist")
	defer q.Close()

	err := q.PublishJob(s.ctx, domain.JobMessage{JobID: "durable", ItemID: 1})
	s.NoError(err)

	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume("persist-jobs", "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)
		s.Equal("application/json", msg.ContentType)

		var decoded domain.JobMessage
		s.NoError(json.Unmarshal(msg.Body, &decoded))
		s.Equal("durable", decoded.JobID)
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
	}
}

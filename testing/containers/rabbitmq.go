//go:build integration

package containers

import (
	"context"
	"fmt"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	defaultRabbitMQImage   = "rabbitmq:3.13-management-alpine"
	defaultStartupTimeout  = 60 * time.Second
	defaultRabbitMQAccount = "guest"
)

// RabbitMQOption customizes StartRabbitMQ.
type RabbitMQOption func(*rabbitMQSettings)

type rabbitMQSettings struct {
	image    string
	username string
	password string
	timeout  time.Duration
}

// WithRabbitMQImage overrides the broker image.
func WithRabbitMQImage(image string) RabbitMQOption {
	return func(s *rabbitMQSettings) { s.image = image }
}

// WithRabbitMQCredentials overrides the admin account (guest/guest by default).
func WithRabbitMQCredentials(username, password string) RabbitMQOption {
	return func(s *rabbitMQSettings) {
		s.username = username
		s.password = password
	}
}

// RabbitMQ is a running broker owned by a test.
type RabbitMQ struct {
	container *rabbitmq.RabbitMQContainer
	url       string
}

// StartRabbitMQ runs a broker for the lifetime of t. The test is skipped
// without Docker and fails if the broker does not come up.
func StartRabbitMQ(ctx context.Context, t *testing.T, opts ...RabbitMQOption) *RabbitMQ {
	t.Helper()
	RequireDocker(ctx, t)

	s := rabbitMQSettings{
		image:    defaultRabbitMQImage,
		username: defaultRabbitMQAccount,
		password: defaultRabbitMQAccount,
		timeout:  defaultStartupTimeout,
	}
	for _, opt := range opts {
		opt(&s)
	}

	c, err := rabbitmq.Run(ctx, s.image,
		rabbitmq.WithAdminUsername(s.username),
		rabbitmq.WithAdminPassword(s.password),
		testcontainers.WithWaitStrategy(wait.ForLog("Server startup complete").WithStartupTimeout(s.timeout)),
	)
	if err != nil {
		t.Fatalf("failed to start RabbitMQ container: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate RabbitMQ container: %v", err)
		}
	})

	url, err := c.AmqpURL(ctx)
	if err != nil {
		t.Fatalf("failed to get RabbitMQ URL: %v", err)
	}
	t.Logf("RabbitMQ listening at %s", url)

	return &RabbitMQ{container: c, url: url}
}

// URL returns the AMQP URL including credentials.
func (r *RabbitMQ) URL() string {
	return r.url
}

// Bind declares a durable topic exchange and an exclusive queue bound to it
// with key, and returns the queue's deliveries. The connection is closed
// when t finishes.
func (r *RabbitMQ) Bind(t *testing.T, exchange, key string) <-chan amqp.Delivery {
	t.Helper()

	conn, err := amqp.Dial(r.url)
	if err != nil {
		t.Fatalf("failed to connect to RabbitMQ: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	ch, err := conn.Channel()
	if err != nil {
		t.Fatalf("failed to open channel: %v", err)
	}

	queue, err := declareBoundQueue(ch, exchange, key)
	if err != nil {
		t.Fatal(err)
	}
	deliveries, err := ch.Consume(queue, "", true, true, false, false, nil)
	if err != nil {
		t.Fatalf("failed to consume: %v", err)
	}
	return deliveries
}

func declareBoundQueue(ch *amqp.Channel, exchange, key string) (string, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return "", fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return "", fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, key, exchange, false, nil); err != nil {
		return "", fmt.Errorf("failed to bind queue %s: %w", q.Name, err)
	}
	return q.Name, nil
}

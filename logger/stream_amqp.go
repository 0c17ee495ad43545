package logger

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gaborage/go-ignition/apperrors"
)

// Seams over amqp091 so the sink can be tested without a broker.
type amqpConnection interface {
	Channel() (amqpChannel, error)
	Close() error
}

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type realConnection struct{ c *amqp.Connection }

func (r realConnection) Channel() (amqpChannel, error) {
	ch, err := r.c.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (r realConnection) Close() error { return r.c.Close() }

type amqpDialFunc func(url string) (amqpConnection, error)

func dialAMQP(url string) (amqpConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return realConnection{c: conn}, nil
}

// amqpSink publishes each record to a topic exchange.
type amqpSink struct {
	mu         sync.Mutex
	conn       amqpConnection
	ch         amqpChannel
	exchange   string
	routingKey string
	timeout    time.Duration
}

// buildAMQP connects to the broker. An unreachable broker is reported as a
// warning and the transport is skipped; a missing URL is a usage error.
func buildAMQP(c *core) error {
	o := c.opts.AMQP
	if o.URL == "" {
		return apperrors.New(apperrors.IncorrectUsageError,
			apperrors.WithMessage("The amqp transport requires a broker URL."),
			apperrors.WithHelp("Set logging.amqp.url."),
		)
	}
	match, err := compileMatch(TransportAMQP, o.Match)
	if err != nil {
		return err
	}

	dial := c.opts.dial
	if dial == nil {
		dial = dialAMQP
	}
	sink, err := newAMQPSink(dial, o)
	if err != nil {
		c.warn("Cannot connect to AMQP broker " + redactAMQPURL(o.URL) + ": " + err.Error())
		return nil
	}
	c.addStream(&Stream{
		Name:  TransportAMQP,
		Kind:  KindRemote,
		Level: c.level,
		match: match,
		w:     sink,
	})
	return nil
}

func newAMQPSink(dial amqpDialFunc, o AMQPOptions) (*amqpSink, error) {
	conn, err := dial(o.URL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(o.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &amqpSink{
		conn:       conn,
		ch:         ch,
		exchange:   o.Exchange,
		routingKey: o.RoutingKey,
		timeout:    o.Timeout,
	}, nil
}

func (s *amqpSink) Write(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ch.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         p,
	})
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *amqpSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.ch.Close(), s.conn.Close())
}

// #nosec G101 -- placeholder, not a credential
const redactedAMQPPlaceholder = "amqp://****:****@<host>:<port>/<vhost>"

// redactAMQPURL masks the password of an AMQP URL and keeps everything else.
// Unparsable or non-AMQP input collapses to a placeholder.
func redactAMQPURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "amqp" && u.Scheme != "amqps") || u.Host == "" {
		return redactedAMQPPlaceholder
	}

	userInfo := "****:****"
	if u.User != nil && u.User.Username() != "" {
		userInfo = u.User.Username() + ":****"
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(userInfo)
	b.WriteByte('@')
	b.WriteString(u.Host)
	b.WriteString(u.EscapedPath())
	if u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	return b.String()
}

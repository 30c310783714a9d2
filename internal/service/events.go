package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/helpdeskhq/helpdesk/internal/queue"
)

// Publisher delivers domain events.  Implementations must not fail the
// caller: a lost event is logged, the mutation it describes stands.
type Publisher interface {
	Publish(ctx context.Context, ev queue.Event)
}

// NopPublisher drops every event.  Used when EVENTS_ENABLED is false.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.Event) {}

// errBrokerDown is returned while a failed dial is cooling down.
var errBrokerDown = errors.New("broker unavailable, retry pending")

// AMQPPublisher publishes events as persistent JSON messages to the
// durable helpdesk.events queue.  It keeps one connection and channel
// and reopens them lazily after a failure.  A failed dial is not retried
// before RetryAfter has passed, so a broker outage costs one dial timeout
// per RetryAfter window instead of one per event.
type AMQPPublisher struct {
	URL         string
	Logger      *zap.Logger
	DialTimeout time.Duration
	RetryAfter  time.Duration

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	downUntil time.Time
	dial      func(url string, timeout time.Duration) (*amqp.Connection, error)
	now       func() time.Time
}

// NewAMQPPublisher returns a publisher for the broker at url.  Nothing is
// dialed until the first event.
func NewAMQPPublisher(url string, logger *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		URL:         url,
		Logger:      logger,
		DialTimeout: 2 * time.Second,
		RetryAfter:  15 * time.Second,
		dial: func(url string, timeout time.Duration) (*amqp.Connection, error) {
			return amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(timeout)})
		},
		now: time.Now,
	}
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.Event) {
	if err := p.publish(ctx, ev); err != nil {
		p.Logger.Warn("event publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetLocked()
}

func (p *AMQPPublisher) publish(ctx context.Context, ev queue.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		"",                // default exchange
		queue.EventsQueue, // routing key = queue name
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Type:         ev.Type,
			Body:         body,
		})
	if err != nil {
		_ = p.resetLocked() // next event reconnects
	}
	return err
}

// channelLocked returns the open channel, dialing when there is none.
func (p *AMQPPublisher) channelLocked() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	_ = p.resetLocked()
	if p.now().Before(p.downUntil) {
		return nil, errBrokerDown
	}
	conn, err := p.dial(p.URL, p.DialTimeout)
	if err != nil {
		p.downUntil = p.now().Add(p.RetryAfter)
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.downUntil = p.now().Add(p.RetryAfter)
		return nil, err
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		queue.EventsQueue, // name
		true,              // durable
		false,             // autoDelete
		false,             // exclusive
		false,             // noWait
		nil,               // args
	); err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch, p.downUntil = conn, ch, time.Time{}
	return ch, nil
}

func (p *AMQPPublisher) resetLocked() error {
	var err error
	if p.conn != nil && !p.conn.IsClosed() {
		err = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
	return err
}

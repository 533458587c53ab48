package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// DefaultQueue is the durable queue notifications are published to.
const DefaultQueue = "reservation.notifications"

const (
	defaultDialTimeout = 5 * time.Second
	defaultRedialAfter = 10 * time.Second
)

// ErrBrokerUnavailable is returned by Notify when no channel is open and
// none can be opened right now: another caller is already reconnecting,
// or the last attempt failed too recently to try again.
var ErrBrokerUnavailable = errors.New("rabbitmq: broker unavailable")

// Publisher sends notification events to RabbitMQ. The connection is
// opened lazily and reopened after the broker drops it; a publish that
// fails on a stale channel is retried once on a fresh one. Messages are
// marked as persistent.
//
// Only one caller dials at a time and the dial runs without holding the
// lock, so an unreachable broker costs other callers nothing: they fail
// fast with ErrBrokerUnavailable.
type Publisher struct {
	url         string
	queue       string
	log         *logrus.Logger
	now         func() time.Time
	dialTimeout time.Duration
	redialAfter time.Duration
	dial        func(url string, timeout time.Duration) (*amqp.Connection, error)

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	dialing  bool
	nextDial time.Time
}

func NewPublisher(url, queue string, log *logrus.Logger) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Publisher{
		url:         url,
		queue:       queue,
		log:         log,
		now:         time.Now,
		dialTimeout: defaultDialTimeout,
		redialAfter: defaultRedialAfter,
		dial:        dialAMQP,
	}
}

func dialAMQP(url string, timeout time.Duration) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

// Notify implements the lifecycle and sweeper notifier.
func (p *Publisher) Notify(ctx context.Context, n model.Notification) error {
	ev := NewNotificationEvent(n, p.now())
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    ev.ID,
		Type:         ev.Kind,
		Timestamp:    p.now().UTC(),
		Body:         body,
	}

	for attempt := 0; attempt < 2; attempt++ {
		ch, err := p.channel(ctx)
		if err != nil {
			return fmt.Errorf("publish %s: %w", ev.Kind, err)
		}
		err = ch.PublishWithContext(ctx, "", p.queue, false, false, pub)
		if err == nil {
			p.log.WithFields(logrus.Fields{
				"event_id":       ev.ID,
				"kind":           ev.Kind,
				"reservation_id": ev.ReservationID,
			}).Debug("notification published")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.WithError(err).Warn("rabbitmq: publish failed, reconnecting")
		p.drop(ch)
	}
	return fmt.Errorf("publish %s: %w", ev.Kind, ErrBrokerUnavailable)
}

// channel returns an open channel, dialing and declaring the queue if
// needed. The dial is bounded by the dial timeout and by ctx's deadline.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	if p.ch != nil && !p.ch.IsClosed() {
		ch := p.ch
		p.mu.Unlock()
		return ch, nil
	}
	if p.dialing || p.now().Before(p.nextDial) {
		p.mu.Unlock()
		return nil, ErrBrokerUnavailable
	}
	p.dialing = true
	p.resetLocked()
	p.mu.Unlock()

	conn, ch, err := p.open(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialing = false
	if err != nil {
		p.nextDial = p.now().Add(p.redialAfter)
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) open(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	timeout := p.dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, nil, context.DeadlineExceeded
	}
	conn, err := p.dial(p.url, timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("queue declare: %w", err)
	}
	return conn, ch, nil
}

// drop discards ch if it is still the current channel.
func (p *Publisher) drop(ch *amqp.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == ch {
		p.resetLocked()
	}
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}

// LogNotifier writes notifications to the application log. It stands in
// for the Publisher when no broker is configured.
type LogNotifier struct {
	Log *logrus.Logger
}

func (l LogNotifier) Notify(_ context.Context, n model.Notification) error {
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{
		"kind":           n.Kind,
		"reservation_id": n.ReservationID,
		"guest_id":       n.GuestID,
		"status":         n.Status,
	}).Info("notification")
	return nil
}

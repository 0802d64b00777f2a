// Package queue_publisher publishes account events to RabbitMQ. Errors are
// logged; Emit never fails the request that triggered it.
package queue_publisher

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/disable-customer/internal/disablement"
	"github.com/iliyamo/disable-customer/internal/model"
	q "github.com/iliyamo/disable-customer/internal/queue"
)

// Publisher is the disablement.EventSink backed by the account.events queue.
type Publisher struct {
	URL     string
	Log     *zap.Logger
	Timeout time.Duration
	Now     func() time.Time
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	return &Publisher{URL: url, Log: log, Timeout: 3 * time.Second, Now: time.Now}
}

// Emit converts the account into an AccountEvent and publishes it.
func (p *Publisher) Emit(ctx context.Context, name string, account model.Account) {
	ev := NewAccountEvent(name, account, p.Now())
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.Timeout)
	defer cancel()
	if err := p.Publish(ctx, ev); err != nil {
		p.Log.Warn("account event dropped", zap.String("event", name), zap.Uint64("account_id", account.ID), zap.Error(err))
	}
}

// NewAccountEvent builds the wire payload of an event about account.
func NewAccountEvent(name string, account model.Account, at time.Time) q.AccountEvent {
	ev := q.AccountEvent{
		Name:       name,
		AccountID:  account.ID,
		Email:      account.Email,
		Role:       account.Role,
		OccurredAt: at.UTC().Format(time.RFC3339),
	}
	if v := account.AttributeValue(disablement.AttrDisabledMessage); v != nil {
		ev.DisabledMessage = *v
	}
	if v := account.AttributeValue(disablement.AttrDisabledAt); v != nil {
		ev.DisabledAt = *v
	}
	return ev
}

// Publish sends event to the durable queue as a persistent message.
func (p *Publisher) Publish(ctx context.Context, event q.AccountEvent) error {
	// Timeout bounds the TCP connect and the AMQP handshake; broker
	// stalls must not hold up the request that emitted the event.
	conn, err := amqp.DialConfig(p.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.Timeout),
	})
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		q.AccountEventsQueue, // name
		true,                 // durable
		false,                // autoDelete
		false,                // exclusive
		false,                // noWait
		nil,                  // args
	); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx,
		"",                   // default exchange
		q.AccountEventsQueue, // routing key = queue name
		false,                // mandatory
		false,                // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    p.Now().UTC(),
			Type:         event.Name,
			Body:         body,
		},
	)
}

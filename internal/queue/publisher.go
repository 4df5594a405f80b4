// Package queue publishes booking lifecycle events to RabbitMQ for
// downstream notification delivery. Messages are durable so consumers survive
// broker restarts; publishing is best-effort and never blocks a booking flow.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/transitfare/fare-go/internal/domain"
)

const (
	QueueBookingConfirmed = "booking.confirmed"
	QueuePaymentConfirmed = "payment.confirmed"
	QueueBookingCancelled = "booking.cancelled"
)

type Publisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher dials the broker and declares the event queues.
func NewPublisher(url string) (*Publisher, error) {
	const op = "queue.NewPublisher"

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, name := range []string{QueueBookingConfirmed, QueuePaymentConfirmed, QueueBookingCancelled} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("%s: declare %s: %w", op, name, err)
		}
	}

	return &Publisher{conn: conn, ch: ch}, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.Close(); err != nil {
		return err
	}
	return p.conn.Close()
}

type bookingEvent struct {
	Booking     domain.BookingRecord `json:"booking"`
	RefundCents int64                `json:"refund_cents,omitempty"`
	At          string               `json:"at"`
}

type paymentEvent struct {
	Payment domain.PaymentRecord `json:"payment"`
	At      string               `json:"at"`
}

func (p *Publisher) BookingConfirmed(ctx context.Context, b domain.BookingRecord) error {
	return p.publish(ctx, QueueBookingConfirmed, bookingEvent{Booking: b, At: now()})
}

func (p *Publisher) PaymentConfirmed(ctx context.Context, pay domain.PaymentRecord) error {
	return p.publish(ctx, QueuePaymentConfirmed, paymentEvent{Payment: pay, At: now()})
}

func (p *Publisher) BookingCancelled(ctx context.Context, b domain.BookingRecord, refundCents int64) error {
	return p.publish(ctx, QueueBookingCancelled, bookingEvent{Booking: b, RefundCents: refundCents, At: now()})
}

func (p *Publisher) publish(ctx context.Context, queue string, payload any) error {
	const op = "queue.Publisher.publish"

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key = queue name
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, queue, err)
	}

	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

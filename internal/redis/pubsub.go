package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/transitfare/fare-go/internal/domain"
)

// BookingEventsPubSub broadcasts booking lifecycle events on a single redis
// channel. Delivery is fire-and-forget; subscribers that miss a message query
// the read side instead.
type BookingEventsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewBookingEventsPubSub(rdb *redis.Client) *BookingEventsPubSub {
	return &BookingEventsPubSub{
		rdb:     rdb,
		channel: ChannelBookingEvents(),
	}
}

type bookingEventMsg struct {
	Type        string                `json:"type"`
	Booking     *domain.BookingRecord `json:"booking,omitempty"`
	Payment     *domain.PaymentRecord `json:"payment,omitempty"`
	RefundCents int64                 `json:"refund_cents,omitempty"`
	TsUnix      int64                 `json:"ts_unix"`
}

func (p *BookingEventsPubSub) BookingConfirmed(ctx context.Context, b domain.BookingRecord) error {
	return p.publish(ctx, bookingEventMsg{Type: "booking_confirmed", Booking: &b})
}

func (p *BookingEventsPubSub) PaymentConfirmed(ctx context.Context, pay domain.PaymentRecord) error {
	return p.publish(ctx, bookingEventMsg{Type: "payment_confirmed", Payment: &pay})
}

func (p *BookingEventsPubSub) BookingCancelled(ctx context.Context, b domain.BookingRecord, refundCents int64) error {
	return p.publish(ctx, bookingEventMsg{Type: "booking_cancelled", Booking: &b, RefundCents: refundCents})
}

func (p *BookingEventsPubSub) publish(ctx context.Context, msg bookingEventMsg) error {
	msg.TsUnix = time.Now().Unix()

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe delivers booking events until the context is cancelled.
func (p *BookingEventsPubSub) Subscribe(
	ctx context.Context,
	handler func(ctx context.Context, eventType string, payload []byte),
) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev bookingEventMsg
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil && ev.Type != "" {
				handler(ctx, ev.Type, []byte(m.Payload))
			}
		}
	}
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Consumer reads ReservationEvents from QueueName and writes one line
// per event to out.
type Consumer struct {
	url string
	out io.Writer
	log *logrus.Logger
}

func NewConsumer(url string, out io.Writer, log *logrus.Logger) *Consumer {
	return &Consumer{url: url, out: out, log: log}
}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff (capped at 30s) when the
// connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.WithError(err).WithField("retry_in", backoff.String()).Warn("notifier: failed to dial broker")
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.WithError(err).Warn("notifier: consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.WithError(err).Warn("notifier: set QoS failed")
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.Body); err != nil {
				c.log.WithError(err).Error("notifier: handle message failed")
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message body and writes its notification line.
func (c *Consumer) Handle(body []byte) error {
	var ev ReservationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if _, err := io.WriteString(c.out, FormatLine(ev)); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single human readable log line.
func FormatLine(ev ReservationEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | ref=%s | reservation_id=%d | customer_id=%d | departure_id=%d | date=%s | seats=%d | total=%d cents | status=%s",
		ev.OccurredAt, describe(ev), ev.Reference, ev.ReservationID, ev.CustomerID, ev.DepartureID,
		ev.TravelDate, ev.SeatCount, ev.TotalPriceCents, ev.Status)
	if ev.PreviousStatus != "" {
		fmt.Fprintf(&b, " | from=%s", ev.PreviousStatus)
	}
	if ev.Reason != "" {
		fmt.Fprintf(&b, " | reason=%q", ev.Reason)
	}
	if ev.PenaltyCents != nil {
		fmt.Fprintf(&b, " | penalty=%d cents", *ev.PenaltyCents)
	}
	if ev.DepartsAt != "" {
		fmt.Fprintf(&b, " | departs_at=%s", ev.DepartsAt)
	}
	if len(ev.Recipients) > 0 {
		fmt.Fprintf(&b, " | to=[%s]", strings.Join(ev.Recipients, ","))
	}
	b.WriteByte('\n')
	return b.String()
}

func describe(ev ReservationEvent) string {
	switch ev.Type {
	case EventReservationCreated:
		return "New reservation awaiting validation"
	case EventTripReminder:
		return "Trip reminder"
	case EventStatusChanged:
		return "Reservation " + strings.ToLower(ev.Status)
	}
	return string(ev.Type)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package service

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"

    q "github.com/iliyamo/campus-marketplace/internal/queue"
)

// maxDialTimeout bounds the connect and AMQP handshake when the caller's
// context carries no earlier deadline.
const maxDialTimeout = 5 * time.Second

// QueuePublisher publishes reservation events to RabbitMQ.  Each call dials
// its own connection, so a broker outage only affects the events published
// while it lasts.
type QueuePublisher struct {
    url   string
    queue string
    log   *logrus.Logger
}

// NewQueuePublisher returns a publisher for the reservation events queue.
func NewQueuePublisher(url string, log *logrus.Logger) *QueuePublisher {
    return &QueuePublisher{url: url, queue: q.ReservationQueue, log: log}
}

// Publish sends ev to the durable reservation queue as a persistent
// message.  The event id doubles as the AMQP message id so consumers can
// drop redeliveries.
func (p *QueuePublisher) Publish(ctx context.Context, ev q.ReservationEvent) error {
    timeout, err := dialTimeout(ctx)
    if err != nil {
        return fmt.Errorf("rabbitmq dial: %w", err)
    }
    conn, err := amqp.DialConfig(p.url, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      amqp.DefaultDial(timeout),
    })
    if err != nil {
        return fmt.Errorf("rabbitmq dial: %w", err)
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("rabbitmq channel: %w", err)
    }
    defer func() { _ = ch.Close() }()

    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        p.queue, // name
        true,    // durable
        false,   // autoDelete
        false,   // exclusive
        false,   // noWait
        nil,     // args
    ); err != nil {
        return fmt.Errorf("rabbitmq queue declare: %w", err)
    }

    body, err := json.Marshal(ev)
    if err != nil {
        return fmt.Errorf("marshal event: %w", err)
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        MessageId:    ev.ID,
        Type:         ev.Type,
        Timestamp:    ev.OccurredAt,
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx,
        "",      // default exchange
        p.queue, // routing key = queue name
        false,   // mandatory
        false,   // immediate
        pub,
    ); err != nil {
        return fmt.Errorf("rabbitmq publish: %w", err)
    }
    p.log.WithFields(logrus.Fields{"event": ev.Type, "event_id": ev.ID, "reservation_id": ev.ReservationID}).Debug("reservation event published")
    return nil
}

// dialTimeout is the time left before ctx expires, capped at
// maxDialTimeout.  amqp.DefaultDial applies it to the TCP connect and to the
// handshake, so a broker that accepts but never answers cannot outlive ctx.
func dialTimeout(ctx context.Context) (time.Duration, error) {
    if err := ctx.Err(); err != nil {
        return 0, err
    }
    timeout := maxDialTimeout
    if deadline, ok := ctx.Deadline(); ok {
        left := time.Until(deadline)
        if left <= 0 {
            return 0, context.DeadlineExceeded
        }
        if left < timeout {
            timeout = left
        }
    }
    return timeout, nil
}

package queue

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/campus-marketplace/internal/metrics"
    "github.com/iliyamo/campus-marketplace/internal/model"
)

// UserLookup resolves the recipient of an event.
type UserLookup interface {
    GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Sender delivers the email for one event.
type Sender interface {
    SendReservationEmail(recipient model.User, ev ReservationEvent) error
}

// Deduper reports whether an event id is seen for the first time.
type Deduper interface {
    FirstSeen(ctx context.Context, eventID string) (bool, error)
}

// Consumer reads reservation events and emails the affected user.
type Consumer struct {
    url     string
    users   UserLookup
    sender  Sender
    dedupe  Deduper
    metrics *metrics.Metrics
    log     *logrus.Logger
}

// NewConsumer builds a consumer.  dedupe may be nil.
func NewConsumer(url string, users UserLookup, sender Sender, dedupe Deduper, mm *metrics.Metrics, log *logrus.Logger) *Consumer {
    return &Consumer{url: url, users: users, sender: sender, dedupe: dedupe, metrics: mm, log: log}
}

// Run connects to RabbitMQ, declares the reservation queue and consumes
// until ctx is cancelled.  Lost connections are re-dialed with exponential
// backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.log.WithError(err).WithField("retry_in", backoff.String()).Warn("reservation consumer: dial failed")
            select {
            case <-ctx.Done():
                return ctx.Err()
            case <-time.After(backoff):
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.log.WithError(err).Warn("reservation consumer: consume loop ended; reconnecting")
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-time.After(2 * time.Second):
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(20, 0, false); err != nil {
        c.log.WithError(err).Warn("reservation consumer: set QoS failed")
    }
    if _, err := ch.QueueDeclare(ReservationQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(ReservationQueue, "", false, false, false, false, nil)
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
            if err := c.Handle(ctx, d.Body); err != nil {
                c.log.WithError(err).WithField("message_id", d.MessageId).Error("reservation consumer: handle message failed")
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// Handle processes one message body.  A returned error means the message
// is dropped.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
    var ev ReservationEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if c.dedupe != nil && ev.ID != "" {
        first, err := c.dedupe.FirstSeen(ctx, ev.ID)
        if err != nil {
            c.log.WithError(err).Warn("reservation consumer: dedupe check failed, sending anyway")
        } else if !first {
            c.log.WithField("event_id", ev.ID).Debug("reservation consumer: duplicate event skipped")
            return nil
        }
    }

    recipient, err := c.users.GetByID(ctx, ev.RecipientID())
    if errors.Is(err, sql.ErrNoRows) {
        c.log.WithFields(logrus.Fields{"event": ev.Type, "user_id": ev.RecipientID()}).Warn("reservation consumer: recipient not found")
        return nil
    }
    if err != nil {
        return fmt.Errorf("load recipient %d: %w", ev.RecipientID(), err)
    }

    err = c.sender.SendReservationEmail(recipient, ev)
    c.metrics.EmailsSent.WithLabelValues(ev.Type, metrics.Result(err)).Inc()
    if err != nil {
        return err
    }
    c.log.WithFields(logrus.Fields{
        "event":          ev.Type,
        "reservation_id": ev.ReservationID,
        "user_id":        recipient.ID,
    }).Info("reservation email sent")
    return nil
}

// RedisDeduper remembers event ids in Redis for ttl.
type RedisDeduper struct {
    rdb    *redis.Client
    prefix string
    ttl    time.Duration
}

// NewRedisDeduper keys event ids under evt:reservation:.
func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
    return &RedisDeduper{rdb: rdb, prefix: "evt:reservation:", ttl: ttl}
}

// FirstSeen marks eventID as handled and reports whether it was new.
func (d *RedisDeduper) FirstSeen(ctx context.Context, eventID string) (bool, error) {
    return d.rdb.SetNX(ctx, d.prefix+eventID, 1, d.ttl).Result()
}

// LogSender stands in for SMTP when no mail server is configured.
type LogSender struct {
    Log *logrus.Logger
}

// SendReservationEmail logs the notification instead of sending it.
func (s LogSender) SendReservationEmail(recipient model.User, ev ReservationEvent) error {
    s.Log.WithFields(logrus.Fields{
        "event":          ev.Type,
        "reservation_id": ev.ReservationID,
        "to":             recipient.Email,
    }).Info("smtp not configured; notification logged only")
    return nil
}

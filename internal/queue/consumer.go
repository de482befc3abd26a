package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Consumer binds a durable queue to every ticket.* key of the exchange and
// appends each message to an AuditLog.
type Consumer struct {
    url      string
    exchange string
    queue    string
    audit    *AuditLog
    log      *zap.Logger
}

func NewConsumer(url, exchange, queue string, audit *AuditLog, log *zap.Logger) *Consumer {
    return &Consumer{url: url, exchange: exchange, queue: queue, audit: audit, log: log}
}

// Run keeps consuming, reconnecting with capped exponential backoff, until
// ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err == nil {
            backoff = time.Second // reset after successful connect
            err = c.consumeLoop(ctx, conn)
            _ = conn.Close()
            if ctx.Err() != nil {
                return nil
            }
            c.log.Warn("audit consumer loop ended, reconnecting", zap.Error(err))
        } else {
            c.log.Warn("audit consumer cannot reach broker", zap.Error(err), zap.Duration("retry_in", backoff))
        }

        select {
        case <-ctx.Done():
            return nil
        case <-time.After(backoff):
        }
        if backoff < 30*time.Second {
            backoff *= 2
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
        c.log.Warn("audit consumer: set QoS failed", zap.Error(err))
    }
    if err := ch.ExchangeDeclare(c.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
        return fmt.Errorf("exchange declare: %w", err)
    }
    if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    if err := ch.QueueBind(c.queue, "ticket.*", c.exchange, false, nil); err != nil {
        return fmt.Errorf("queue bind: %w", err)
    }
    msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
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
            if err := c.handle(d.Body); err != nil {
                c.log.Warn("audit consumer: message rejected", zap.Error(err))
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func (c *Consumer) handle(body []byte) error {
    var msg TicketMessage
    if err := json.Unmarshal(body, &msg); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    return c.audit.Append(msg)
}

package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Publisher keeps one broker connection and publishes ticket messages to a
// durable topic exchange. A broken connection is re-dialled on the next
// publish.
type Publisher struct {
    url      string
    exchange string
    log      *zap.Logger

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

func NewPublisher(url, exchange string, log *zap.Logger) *Publisher {
    return &Publisher{url: url, exchange: exchange, log: log}
}

// channel returns an open channel, dialling when needed. Callers hold mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() {
        return p.ch, nil
    }
    p.reset()
    conn, err := amqp.Dial(p.url)
    if err != nil {
        return nil, fmt.Errorf("dial broker: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, fmt.Errorf("open channel: %w", err)
    }
    // Durable so messages survive broker restarts.
    if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
        _ = conn.Close()
        return nil, fmt.Errorf("declare exchange: %w", err)
    }
    p.conn, p.ch = conn, ch
    p.log.Info("rabbitmq publisher connected", zap.String("exchange", p.exchange))
    return ch, nil
}

func (p *Publisher) reset() {
    if p.ch != nil {
        _ = p.ch.Close()
    }
    if p.conn != nil {
        _ = p.conn.Close()
    }
    p.conn, p.ch = nil, nil
}

// Send publishes msg with its kind as routing key. Messages are marked as
// persistent.
func (p *Publisher) Send(ctx context.Context, msg TicketMessage) error {
    body, err := json.Marshal(msg)
    if err != nil {
        return fmt.Errorf("marshal message: %w", err)
    }

    p.mu.Lock()
    defer p.mu.Unlock()
    ch, err := p.channel()
    if err != nil {
        return err
    }
    err = ch.PublishWithContext(ctx, p.exchange, msg.Kind, false, false, amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    msg.NotificationID,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    })
    if err != nil {
        p.reset()
        return fmt.Errorf("publish %s: %w", msg.Kind, err)
    }
    return nil
}

func (p *Publisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.reset()
    return nil
}

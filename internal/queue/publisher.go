package queue

import (
    "context"
    "encoding/json"
    "log/slog"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher publishes ChangeEvents to the reservations topic exchange.
// Errors are logged and returned so callers can choose to ignore them
// without interrupting the request flow.
type AMQPPublisher struct {
    URL      string
    Exchange string
    Logger   *slog.Logger
}

// NewAMQPPublisher returns a publisher for the broker at url.
func NewAMQPPublisher(url, exchange string, logger *slog.Logger) *AMQPPublisher {
    if exchange == "" {
        exchange = DefaultExchange
    }
    if logger == nil {
        logger = slog.Default()
    }
    return &AMQPPublisher{URL: url, Exchange: exchange, Logger: logger}
}

// Publish sends ev routed by its tenant.  Messages are persistent.
func (p *AMQPPublisher) Publish(ctx context.Context, ev ChangeEvent) error {
    conn, err := amqp.Dial(p.URL)
    if err != nil {
        p.Logger.Error("rabbitmq: dial failed", "error", err)
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.Logger.Error("rabbitmq: channel open failed", "error", err)
        return err
    }
    defer func() { _ = ch.Close() }()

    // Idempotent; durable so the exchange survives broker restarts.
    if err := ch.ExchangeDeclare(
        p.Exchange, // name
        "topic",    // kind
        true,       // durable
        false,      // autoDelete
        false,      // internal
        false,      // noWait
        nil,        // args
    ); err != nil {
        p.Logger.Error("rabbitmq: exchange declare failed", "error", err)
        return err
    }

    body, err := json.Marshal(ev)
    if err != nil {
        p.Logger.Error("rabbitmq: marshal event failed", "error", err)
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    ev.EventID,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx,
        p.Exchange,              // exchange
        RoutingKey(ev.TenantID), // routing key
        false,                   // mandatory
        false,                   // immediate
        pub,
    ); err != nil {
        p.Logger.Error("rabbitmq: publish failed", "error", err, "tenant", ev.TenantID)
        return err
    }
    return nil
}

package queue

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "sync"
    "sync/atomic"

    "github.com/google/uuid"
    amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange reservation changes are published to.
const DefaultExchange = "reservations.changes"

// RoutingKey returns the routing key carrying changes for tenantID.
func RoutingKey(tenantID string) string { return "tenant." + tenantID }

// AMQPFeed subscribes to reservation changes on RabbitMQ.  Each
// subscription owns its own connection and an exclusive, auto-deleted
// queue bound to the tenant's routing key, so nothing is buffered for a
// tenant while it is disconnected.
type AMQPFeed struct {
    URL      string
    Exchange string
    Logger   *slog.Logger
}

// NewAMQPFeed returns a feed for the broker at url.
func NewAMQPFeed(url, exchange string, logger *slog.Logger) *AMQPFeed {
    if exchange == "" {
        exchange = DefaultExchange
    }
    if logger == nil {
        logger = slog.Default()
    }
    return &AMQPFeed{URL: url, Exchange: exchange, Logger: logger}
}

type amqpSubscription struct {
    conn    *amqp.Connection
    ch      *amqp.Channel
    closing atomic.Bool
    once    sync.Once
}

// Subscribe declares the tenant queue and starts delivering events.  An
// error is returned when the broker cannot be reached or the topology
// cannot be declared; after a successful return the subscription reports
// StatusSubscribed and, unless closed by the caller, exactly one of
// StatusClosed or StatusError when the delivery stream ends.
func (f *AMQPFeed) Subscribe(ctx context.Context, tenantID string, h Handlers) (Subscription, error) {
    if err := ctx.Err(); err != nil {
        return nil, err
    }
    conn, err := amqp.Dial(f.URL)
    if err != nil {
        return nil, fmt.Errorf("dial broker: %w", err)
    }
    sub := &amqpSubscription{conn: conn}
    deliveries, err := sub.declare(f.Exchange, tenantID)
    if err != nil {
        _ = conn.Close()
        return nil, err
    }
    closed := conn.NotifyClose(make(chan *amqp.Error, 1))

    go func() {
        h.status(StatusSubscribed, nil)
        f.consume(tenantID, deliveries, h)
        if sub.closing.Load() {
            return
        }
        var amqpErr *amqp.Error
        select {
        case amqpErr = <-closed:
        default:
        }
        _ = sub.Close()
        if amqpErr != nil {
            h.status(StatusError, amqpErr)
            return
        }
        h.status(StatusClosed, errors.New("deliveries channel closed"))
    }()
    return sub, nil
}

func (s *amqpSubscription) declare(exchange, tenantID string) (<-chan amqp.Delivery, error) {
    ch, err := s.conn.Channel()
    if err != nil {
        return nil, fmt.Errorf("channel open: %w", err)
    }
    s.ch = ch
    if err := ch.Qos(50, 0, false); err != nil {
        return nil, fmt.Errorf("set qos: %w", err)
    }
    if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
        return nil, fmt.Errorf("exchange declare: %w", err)
    }
    q, err := ch.QueueDeclare("", false, true, true, false, nil)
    if err != nil {
        return nil, fmt.Errorf("queue declare: %w", err)
    }
    if err := ch.QueueBind(q.Name, RoutingKey(tenantID), exchange, false, nil); err != nil {
        return nil, fmt.Errorf("queue bind: %w", err)
    }
    tag := "reservation-sync-" + uuid.NewString()
    msgs, err := ch.Consume(q.Name, tag, false, true, false, false, nil)
    if err != nil {
        return nil, fmt.Errorf("queue consume: %w", err)
    }
    return msgs, nil
}

func (f *AMQPFeed) consume(tenantID string, deliveries <-chan amqp.Delivery, h Handlers) {
    for d := range deliveries {
        ev, err := DecodeChangeEvent(d.Body)
        if err != nil {
            f.Logger.Warn("change feed: dropping message", "tenant", tenantID, "error", err)
            _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
            continue
        }
        if ev.TenantID != tenantID {
            _ = d.Ack(false)
            continue
        }
        h.event(ev)
        _ = d.Ack(false)
    }
}

// Close tears the subscription down.  It is safe to call more than once.
func (s *amqpSubscription) Close() error {
    s.closing.Store(true)
    var err error
    s.once.Do(func() {
        if s.ch != nil {
            _ = s.ch.Close()
        }
        err = s.conn.Close()
        if errors.Is(err, amqp.ErrClosed) {
            err = nil
        }
    })
    return err
}

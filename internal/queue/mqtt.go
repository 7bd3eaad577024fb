package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// DefaultTopicPrefix is prepended to the tenant id to form MQTT topics.
const DefaultTopicPrefix = "reservations"

const mqttTimeout = 5 * time.Second

// MQTTFeed delivers reservation changes over an MQTT broker, one topic per
// tenant.  Reconnection is left to the caller: the client's auto-reconnect
// is disabled so that a lost connection surfaces as StatusClosed.
type MQTTFeed struct {
	Broker      string
	TopicPrefix string
	Username    string
	Password    string
	Logger      *slog.Logger
}

// NewMQTTFeed returns a feed for broker (e.g. tcp://localhost:1883).
func NewMQTTFeed(broker, topicPrefix string, logger *slog.Logger) *MQTTFeed {
	if topicPrefix == "" {
		topicPrefix = DefaultTopicPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTFeed{Broker: broker, TopicPrefix: topicPrefix, Logger: logger}
}

// Topic returns the topic carrying changes for tenantID.
func (f *MQTTFeed) Topic(tenantID string) string { return f.TopicPrefix + "/" + tenantID }

func (f *MQTTFeed) options(role string) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(f.Broker).
		SetClientID(fmt.Sprintf("reservation-sync-%s-%s", role, uuid.NewString()[:8])).
		SetAutoReconnect(false).
		SetConnectTimeout(mqttTimeout).
		SetOrderMatters(true)
	if f.Username != "" {
		opts = opts.SetUsername(f.Username).SetPassword(f.Password)
	}
	return opts
}

type mqttSubscription struct {
	client  mqtt.Client
	closing atomic.Bool
	once    sync.Once
}

// Subscribe connects and subscribes to the tenant topic with QoS 1.
func (f *MQTTFeed) Subscribe(ctx context.Context, tenantID string, h Handlers) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &mqttSubscription{}
	opts := f.options("sub").SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if sub.closing.Load() {
			return
		}
		h.status(StatusClosed, err)
	})
	client := mqtt.NewClient(opts)
	sub.client = client

	if err := wait(client.Connect()); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	topic := f.Topic(tenantID)
	token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		ev, err := DecodeChangeEvent(msg.Payload())
		if err != nil {
			f.Logger.Warn("change feed: dropping message", "tenant", tenantID, "topic", topic, "error", err)
			return
		}
		if ev.TenantID != tenantID {
			return
		}
		h.event(ev)
	})
	if err := wait(token); err != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	h.status(StatusSubscribed, nil)
	return sub, nil
}

func (s *mqttSubscription) Close() error {
	s.closing.Store(true)
	s.once.Do(func() { s.client.Disconnect(250) })
	return nil
}

// MQTTPublisher publishes ChangeEvents to the tenant topic.
type MQTTPublisher struct {
	feed *MQTTFeed
}

// NewMQTTPublisher publishes through the topic layout of feed.
func NewMQTTPublisher(feed *MQTTFeed) *MQTTPublisher { return &MQTTPublisher{feed: feed} }

// Publish connects, publishes ev with QoS 1 and disconnects.
func (p *MQTTPublisher) Publish(ctx context.Context, ev ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	client := mqtt.NewClient(p.feed.options("pub"))
	if err := wait(client.Connect()); err != nil {
		p.feed.Logger.Error("mqtt: connect failed", "error", err)
		return err
	}
	defer client.Disconnect(250)
	if err := wait(client.Publish(p.feed.Topic(ev.TenantID), 1, false, body)); err != nil {
		p.feed.Logger.Error("mqtt: publish failed", "error", err, "tenant", ev.TenantID)
		return err
	}
	return nil
}

func wait(token mqtt.Token) error {
	if !token.WaitTimeout(mqttTimeout) {
		return errors.New("timed out")
	}
	return token.Error()
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the broker publisher.
type MQTTConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Broker         string        `mapstructure:"broker" yaml:"broker" json:"broker"`
	ClientID       string        `mapstructure:"client_id" yaml:"client_id" json:"client_id"`
	Username       string        `mapstructure:"username" yaml:"username" json:"username"`
	Password       string        `mapstructure:"password" yaml:"password" json:"-"`
	TopicPrefix    string        `mapstructure:"topic_prefix" yaml:"topic_prefix" json:"topic_prefix"`
	QoS            byte          `mapstructure:"qos" yaml:"qos" json:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout" yaml:"publish_timeout" json:"publish_timeout"`
}

// Validate checks the settings of an enabled publisher.
func (c MQTTConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return errors.New("mqtt broker is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.QoS)
	}
	return nil
}

// publisher is the part of mqtt.Client the publisher uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes events as JSON to <prefix>/<event type>.
type MQTTPublisher struct {
	cfg    MQTTConfig
	logger *slog.Logger

	mu     sync.Mutex
	client publisher
}

// NewMQTTPublisher creates a publisher. Call Connect before Send.
func NewMQTTPublisher(cfg MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	if cfg.ClientID == "" {
		cfg.ClientID = "music-enricher"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "music-enricher"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MQTTPublisher{cfg: cfg, logger: logger.With(slog.String("component", "mqtt"))}
}

// Connect dials the broker.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.cfg.Broker)
	opts.SetClientID(p.cfg.ClientID)
	opts.SetUsername(p.cfg.Username)
	opts.SetPassword(p.cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Warn("connection to broker lost", slog.String("broker", p.cfg.Broker), slog.Any("error", err))
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.logger.Info("connected to broker", slog.String("broker", p.cfg.Broker))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if err := wait(ctx, token, p.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("connect to %s: %w", p.cfg.Broker, err)
	}

	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	return nil
}

// Topic returns the topic an event type is published on.
func (p *MQTTPublisher) Topic(eventType string) string {
	return strings.TrimSuffix(p.cfg.TopicPrefix, "/") + "/" + eventType
}

// Send implements Notifier.
func (p *MQTTPublisher) Send(ctx context.Context, eventType string, payload any) error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return errors.New("not connected to MQTT broker")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	topic := p.Topic(eventType)
	if err := wait(ctx, client.Publish(topic, p.cfg.QoS, false, body), p.cfg.PublishTimeout); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logger.Debug("event published", slog.String("topic", topic))
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	p.client = nil
}

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.New("timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

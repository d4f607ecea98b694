// Package publisher mirrors the oven status onto an MQTT topic.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kiln_controller/internal/clock"
	"kiln_controller/internal/logger"
	"kiln_controller/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 5 * time.Second

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// StatusSource supplies the snapshot to publish.
type StatusSource interface {
	State() models.OvenStatus
}

// Client is the part of mqtt.Client the publisher uses.
type Client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

type Publisher struct {
	client Client
	src    StatusSource
	clk    clock.Clock
	topic  string
	every  time.Duration
	log    *logger.Logger
}

// NewClient builds a paho client for opts without dialing. The connection
// is made by Publisher.Run and retried in the background until it succeeds.
func NewClient(opts Options, log *logger.Logger) mqtt.Client {
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetUsername(opts.Username)
	co.SetPassword(opts.Password)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(5 * time.Second)
	co.SetKeepAlive(60 * time.Second)
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnw("mqtt_connection_lost", "err", err)
	})
	co.SetOnConnectHandler(func(mqtt.Client) {
		log.Infow("mqtt_connected", "broker", opts.Broker)
	})
	return mqtt.NewClient(co)
}

func New(client Client, topic string, every time.Duration, src StatusSource, clk clock.Clock, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Publisher{client: client, src: src, clk: clk, topic: topic, every: every, log: log}
}

// Run connects, then publishes a retained snapshot every interval until ctx
// is done. Failed publishes are logged and retried on the next tick. A
// broker that never answers only holds up this goroutine.
func (p *Publisher) Run(ctx context.Context) error {
	if !p.connect(ctx) {
		return nil
	}
	defer p.client.Disconnect(250)

	for {
		if err := p.PublishOnce(); err != nil {
			p.log.Warnw("mqtt_publish_failed", "topic", p.topic, "err", err)
		}
		if err := p.clk.Sleep(ctx, p.every); err != nil {
			return nil
		}
	}
}

func (p *Publisher) connect(ctx context.Context) bool {
	token := p.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		// stops the retry loop
		p.client.Disconnect(0)
		return false
	}
	if err := token.Error(); err != nil {
		p.log.Warnw("mqtt_disabled", "topic", p.topic, "err", fmt.Errorf("connect: %w", err))
		return false
	}
	return true
}

func (p *Publisher) PublishOnce() error {
	payload, err := json.Marshal(p.src.State())
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	token := p.client.Publish(p.topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

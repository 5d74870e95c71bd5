package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/shaunagostinho/psudash/internal/psu"
)

// MQTTOptions configures the MQTT publisher.
type MQTTOptions struct {
	Broker         string // e.g. tcp://localhost:1883
	ClientID       string
	Username       string
	Password       string
	Topic          string // samples go to <Topic>/status
	QoS            byte
	Retain         bool
	ConnectTimeout time.Duration
}

var ErrPublishTimeout = errors.New("mqtt: publish timeout")

// MQTT publishes each sample as JSON to one topic.
type MQTT struct {
	client  mqtt.Client
	topic   string
	qos     byte
	retain  bool
	timeout time.Duration
}

// NewMQTT connects to the broker. The client reconnects on its own after
// the first successful connect.
func NewMQTT(opts MQTTOptions) (*MQTT, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker required")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetKeepAlive(30 * time.Second)
	co.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("[mqtt] connected to %s", opts.Broker)
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("[mqtt] connection lost: %v", err)
	})

	client := mqtt.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connect %s: timeout", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", opts.Broker, err)
	}
	return NewMQTTWithClient(client, opts), nil
}

// NewMQTTWithClient wraps an already connected client.
func NewMQTTWithClient(client mqtt.Client, opts MQTTOptions) *MQTT {
	if opts.Topic == "" {
		opts.Topic = "psudash"
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTT{
		client:  client,
		topic:   opts.Topic + "/status",
		qos:     opts.QoS,
		retain:  opts.Retain,
		timeout: timeout,
	}
}

func (m *MQTT) Name() string { return "mqtt" }

// Topic is where samples are published.
func (m *MQTT) Topic() string { return m.topic }

func (m *MQTT) Publish(ctx context.Context, s *psu.Sample) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("mqtt: marshal sample: %w", err)
	}

	timeout := m.timeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	token := m.client.Publish(m.topic, m.qos, m.retain, payload)
	if !token.WaitTimeout(timeout) {
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", m.topic, err)
	}
	return nil
}

func (m *MQTT) Close() error {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	return nil
}

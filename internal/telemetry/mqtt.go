package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/sonar/internal/monitoring"
	"github.com/banshee-data/sonar/internal/sonar"
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker   string        `json:"broker"`
	ClientID string        `json:"client_id"`
	Topic    string        `json:"topic"`
	QoS      byte          `json:"qos"`
	Retain   bool          `json:"retain"`
	Timeout  time.Duration `json:"-"`
}

// DefaultTopic is used when MQTTOptions.Topic is empty.
const DefaultTopic = "sonar/readings"

// MQTTPublisher publishes readings to an MQTT topic.
type MQTTPublisher struct {
	client  mqtt.Client
	topic   string
	qos     byte
	retain  bool
	timeout time.Duration
}

// DialMQTT connects to the broker and returns a publisher. The client
// reconnects automatically after the first successful connection.
func DialMQTT(opts MQTTOptions) (*MQTTPublisher, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt broker address required")
	}
	if opts.ClientID == "" {
		opts.ClientID = "sonar-" + randomID()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(opts.Timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			monitoring.Logf("mqtt connection lost: %v", err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			monitoring.Logf("mqtt connected to %s", opts.Broker)
		})
	client := mqtt.NewClient(co)
	tok := client.Connect()
	if !tok.WaitTimeout(opts.Timeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timed out", opts.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", opts.Broker, err)
	}
	return newMQTTPublisher(client, opts), nil
}

func newMQTTPublisher(client mqtt.Client, opts MQTTOptions) *MQTTPublisher {
	topic := opts.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTPublisher{
		client:  client,
		topic:   topic,
		qos:     opts.QoS,
		retain:  opts.Retain,
		timeout: timeout,
	}
}

// Publish implements sonar.Publisher. With QoS 0 it does not wait for the
// broker; with QoS 1 or 2 it waits up to the timeout for the acknowledgement,
// so the driver must reach it through a Queue.
func (p *MQTTPublisher) Publish(r sonar.Reading) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}
	tok := p.client.Publish(p.topic, p.qos, p.retain, b)
	if p.qos == 0 {
		return nil
	}
	if !tok.WaitTimeout(p.timeout) {
		return fmt.Errorf("mqtt publish to %s: timed out", p.topic)
	}
	return tok.Error()
}

// Close disconnects from the broker, allowing in-flight messages 250ms.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}

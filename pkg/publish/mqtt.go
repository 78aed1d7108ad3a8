// Package publish forwards engine events to an MQTT broker.
package publish

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dougsko/antbridge/pkg/config"
	"github.com/dougsko/antbridge/pkg/engine"
	"github.com/dougsko/antbridge/pkg/logging"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const publishTimeout = 5 * time.Second

// broker is the part of mqtt.Client the publisher needs.
type broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// EventMessage is the JSON body published for every event.
type EventMessage struct {
	Kind    engine.EventKind `json:"kind"`
	Time    time.Time        `json:"time"`
	Rig     string           `json:"rig,omitempty"`
	Command string           `json:"command,omitempty"`
	Origin  string           `json:"origin,omitempty"`
	Text    string           `json:"text,omitempty"`
}

// MQTTPublisher publishes engine events and the retained engine status.
type MQTTPublisher struct {
	client broker
	prefix string
	log    *logging.ComponentLogger
}

// ClientID returns the configured client id or a random one.
func ClientID(cfg config.MQTTConfig) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return "antbridge_" + uuid.NewString()
}

// NewMQTTPublisher connects to the configured broker. It returns nil when
// MQTT is disabled.
func NewMQTTPublisher(cfg config.MQTTConfig, logger *logging.Logger) (*MQTTPublisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	log := logger.Component("mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(ClientID(cfg))

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info("Connected to broker", logging.Fields{"broker": cfg.Broker})
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn("Connection lost", logging.Fields{"error": err})
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		log.Info("Attempting to reconnect")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return newPublisher(client, cfg.TopicPrefix, logger), nil
}

func newPublisher(client broker, prefix string, logger *logging.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		prefix: prefix,
		log:    logger.Component("mqtt"),
	}
}

// EventTopic is <prefix>/<kind>.
func (p *MQTTPublisher) EventTopic(kind engine.EventKind) string {
	return fmt.Sprintf("%s/%s", p.prefix, kind)
}

// StatusTopic is <prefix>/status.
func (p *MQTTPublisher) StatusTopic() string {
	return p.prefix + "/status"
}

// NewEventMessage builds the published form of ev.
func NewEventMessage(ev engine.Event) EventMessage {
	return EventMessage{
		Kind:    ev.Kind,
		Time:    ev.Time.UTC(),
		Rig:     ev.Rig.String(),
		Command: ev.Command,
		Origin:  string(ev.Origin),
		Text:    ev.Text,
	}
}

// HandleEvent publishes ev and refreshes the retained status. It never waits
// for the broker, so it is safe as an engine.Listener.
func (p *MQTTPublisher) HandleEvent(ev engine.Event) {
	if p == nil || !p.client.IsConnected() {
		return
	}

	data, err := json.Marshal(NewEventMessage(ev))
	if err != nil {
		p.log.Error("Failed to marshal event", logging.Fields{"error": err})
		return
	}
	p.publish(p.EventTopic(ev.Kind), false, data)

	status, err := json.Marshal(ev.Status)
	if err != nil {
		p.log.Error("Failed to marshal status", logging.Fields{"error": err})
		return
	}
	p.publish(p.StatusTopic(), true, status)
}

func (p *MQTTPublisher) publish(topic string, retained bool, data []byte) {
	token := p.client.Publish(topic, 0, retained, data)

	go func() {
		if !token.WaitTimeout(publishTimeout) {
			p.log.Warn("Publish timed out", logging.Fields{"topic": topic})
			return
		}
		if err := token.Error(); err != nil {
			p.log.Error("Failed to publish", logging.Fields{"topic": topic, "error": err})
		}
	}()
}

// Disconnect gracefully disconnects from the broker
func (p *MQTTPublisher) Disconnect() {
	if p != nil && p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		p.log.Info("Disconnected from broker")
	}
}

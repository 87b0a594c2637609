package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/payload-release/internal/logic"
)

// Options configure a RealPublisher.
type Options struct {
	Broker   string
	ClientID string

	// BufferSize bounds the offline buffer. Zero uses DefaultBufferSize.
	BufferSize int

	// OnConnectionChange, if set, is called on connect and connection loss.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	opts   Options

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	reconnect bool // true after the first successful connect
}

// NewRealPublisher creates a publisher for the given broker. An
// unreachable broker is not fatal; the client keeps retrying and
// messages are buffered meanwhile.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, fmt.Errorf("no broker configured")
	}
	if o.ClientID == "" {
		o.ClientID = "release-receiver"
	}
	p := &RealPublisher{opts: o, buf: newRingBuffer(o.BufferSize)}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	wasReconnect := p.reconnect
	p.reconnect = true
	msgs, dropped := p.buf.drainAll()
	p.mu.Unlock()

	log.Printf("mqtt: connected to %s", p.opts.Broker)
	if dropped > 0 {
		log.Printf("mqtt: %d buffered messages were dropped while offline", dropped)
	}
	for _, m := range msgs {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	if wasReconnect {
		if payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err == nil {
			c.Publish(TopicSystem, 1, false, payload)
		}
	}
	if p.opts.OnConnectionChange != nil {
		p.opts.OnConnectionChange(true)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	log.Printf("mqtt: connection lost: %v", err)
	if p.opts.OnConnectionChange != nil {
		p.opts.OnConnectionChange(false)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if !p.connected {
		p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Publish sends a receiver event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(Topic, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(TopicSystem, 1, event.Retained, payload)
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

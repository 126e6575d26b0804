package telemetry

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// spoolCapacity bounds how many messages are held while the broker is
// unreachable. At one event per relay transition this covers hours of
// outage before anything is dropped.
const spoolCapacity = 256

// RealPublisher publishes to an actual MQTT broker. Messages produced
// while the connection is down are spooled and replayed on reconnect.
type RealPublisher struct {
	client      paho.Client
	log         *zap.Logger
	topicEvents string
	topicSystem string

	mu            sync.Mutex
	spool         *ringBuffer
	connectedOnce bool
}

// NewRealPublisher creates a publisher connected to the given broker.
// The device id scopes the topics and the client id.
func NewRealPublisher(broker, deviceID string, log *zap.Logger) (*RealPublisher, error) {
	p := &RealPublisher{
		log:         log,
		topicEvents: TopicEvents(deviceID),
		topicSystem: TopicSystem(deviceID),
		spool:       newRingBuffer(spoolCapacity),
	}

	// The will fires if the broker loses us without a clean disconnect.
	// Its timestamp is fixed at connect time, which is the best we can do.
	will, err := FormatSystemPayload(NewShutdownEvent(time.Now(), "MQTT_DISCONNECT"))
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("proxiswitch-" + deviceID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(p.topicSystem, will, 1, false).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() })

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// PublishEvent sends an outlet event to the MQTT broker.
func (p *RealPublisher) PublishEvent(event Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.publish(p.topicEvents, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.publish(p.topicSystem, 1, event.Retained, payload)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnected() {
		p.mu.Lock()
		overflowed := p.spool.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		spooled := p.spool.len()
		p.mu.Unlock()
		if overflowed {
			p.log.Warn("telemetry spool full, dropping oldest messages",
				zap.Int("capacity", spoolCapacity))
		}
		p.log.Debug("broker offline, message spooled",
			zap.String("topic", topic),
			zap.Int("spooled", spooled))
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	return nil
}

// onConnect runs on the paho client goroutine for the initial connect and
// every reconnect. Reconnects announce themselves and replay the spool.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	first := !p.connectedOnce
	p.connectedOnce = true
	msgs := p.spool.drainAll()
	p.mu.Unlock()

	if first && len(msgs) == 0 {
		return
	}

	if !first {
		payload, err := FormatSystemPayload(SystemEvent{
			Timestamp: time.Now(),
			Event:     "RECONNECTED",
		})
		if err == nil {
			p.client.Publish(p.topicSystem, 1, false, payload)
		}
	}

	if len(msgs) > 0 {
		p.log.Info("broker reachable again, replaying spooled messages",
			zap.Int("count", len(msgs)))
		for _, m := range msgs {
			token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
			token.WaitTimeout(5 * time.Second)
		}
	}
}

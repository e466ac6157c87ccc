package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// outbox publishes messages while connected and buffers them while offline.
type outbox struct {
	mu        sync.Mutex
	buf       *ringBuffer
	send      func(msg bufferedMsg) error
	connected func() bool
}

func (o *outbox) publish(msg bufferedMsg) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.connected() {
		o.buf.push(msg)
		return nil
	}
	if err := o.send(msg); err != nil {
		o.buf.push(msg)
		return err
	}
	return nil
}

// flush replays buffered messages in order. On the first failure the unsent
// messages are kept for the next flush.
func (o *outbox) flush() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	msgs := o.buf.drainAll()
	for i, m := range msgs {
		if err := o.send(m); err != nil {
			log.Printf("mqtt: replay failed after %d messages: %v", i, err)
			for _, rest := range msgs[i:] {
				o.buf.push(rest)
			}
			return i
		}
	}
	return len(msgs)
}

func (o *outbox) pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.len()
}

// Options configures the broker connection.
type Options struct {
	Broker     string
	ClientID   string
	Username   string
	Password   string
	Device     string
	BufferSize int
}

// RealClient talks to an actual MQTT broker.
type RealClient struct {
	client paho.Client
	topics Topics
	out    *outbox

	mu         sync.RWMutex
	onSettings func([]byte)
	onCommand  func(Command)
}

// NewRealClient creates a client and starts connecting in the background.
// Messages published before the first connection are buffered.
func NewRealClient(o Options) *RealClient {
	c := &RealClient{topics: DeviceTopics(o.Device)}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(c.topics.System, string(will), 1, true).
		SetOnConnectHandler(c.handleConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	c.client = paho.NewClient(opts)

	size := o.BufferSize
	if size <= 0 {
		size = 500
	}
	c.out = &outbox{
		buf:       newRingBuffer(size),
		send:      c.send,
		connected: c.client.IsConnectionOpen,
	}

	c.client.Connect()
	return c
}

func (c *RealClient) send(m bufferedMsg) error {
	token := c.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

func (c *RealClient) handleConnect(client paho.Client) {
	log.Printf("mqtt: connected")
	subs := map[string]paho.MessageHandler{
		c.topics.Settings:  c.handleSettings,
		c.topics.GrowCycle: c.handleCommand,
	}
	for topic, h := range subs {
		if token := client.Subscribe(topic, 1, h); token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("mqtt: subscribe %s: %v", topic, token.Error())
		}
	}
	// Replay off the callback goroutine so paho can process acks.
	go func() {
		if n := c.out.flush(); n > 0 {
			log.Printf("mqtt: replayed %d buffered messages", n)
		}
	}()
}

func (c *RealClient) handleSettings(_ paho.Client, m paho.Message) {
	c.mu.RLock()
	h := c.onSettings
	c.mu.RUnlock()
	if h != nil {
		h(m.Payload())
	}
}

func (c *RealClient) handleCommand(_ paho.Client, m paho.Message) {
	cmd, err := ParseCommand(m.Payload())
	if err != nil {
		log.Printf("mqtt: %v", err)
		return
	}
	c.mu.RLock()
	h := c.onCommand
	c.mu.RUnlock()
	if h != nil {
		h(cmd)
	}
}

// PublishReadings sends a readings record, QoS 0, not retained.
func (c *RealClient) PublishReadings(rec ReadingsRecord) error {
	payload, err := FormatReadings(rec)
	if err != nil {
		return fmt.Errorf("format readings: %w", err)
	}
	return c.out.publish(bufferedMsg{topic: c.topics.LiveData, payload: payload})
}

// PublishSystem sends a system event, QoS 1.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return c.out.publish(bufferedMsg{topic: c.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// OnSettings implements Client.
func (c *RealClient) OnSettings(h func([]byte)) {
	c.mu.Lock()
	c.onSettings = h
	c.mu.Unlock()
}

// OnCommand implements Client.
func (c *RealClient) OnCommand(h func(Command)) {
	c.mu.Lock()
	c.onCommand = h
	c.mu.Unlock()
}

// IsConnected implements ConnectionStatus.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Pending returns the number of messages waiting for a connection.
func (c *RealClient) Pending() int {
	return c.out.pending()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}

var (
	_ Client           = (*RealClient)(nil)
	_ ConnectionStatus = (*RealClient)(nil)
)

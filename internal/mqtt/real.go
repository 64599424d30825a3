package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// inboxCapacity bounds messages queued between Poll calls.
const inboxCapacity = 64

// PahoClient is a Client backed by an actual broker connection.
// Auto-reconnect is disabled: the Manager owns the reconnect cadence and
// re-subscribes itself.
type PahoClient struct {
	ConnectTimeout time.Duration
	PublishTimeout time.Duration

	mu          sync.Mutex
	client      paho.Client
	inbox       *ringBuffer
	willTopic   string
	willPayload []byte
}

// NewPahoClient creates an unconnected client.
func NewPahoClient() *PahoClient {
	return &PahoClient{
		ConnectTimeout: 5 * time.Second,
		PublishTimeout: 5 * time.Second,
		inbox:          newRingBuffer(inboxCapacity),
	}
}

// SetWill registers a retained last-will message for subsequent connects.
func (c *PahoClient) SetWill(topic string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.willTopic = topic
	c.willPayload = payload
}

// Connect opens a fresh session to broker (e.g. "tcp://host:1883").
func (c *PahoClient) Connect(broker, clientID, user, password string) error {
	c.mu.Lock()
	old := c.client
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetUsername(user).
		SetPassword(password).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(c.ConnectTimeout).
		SetDefaultPublishHandler(c.onMessage)
	if c.willTopic != "" {
		opts.SetBinaryWill(c.willTopic, c.willPayload, 1, true)
	}
	c.mu.Unlock()

	if old != nil && old.IsConnected() {
		old.Disconnect(250)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(c.ConnectTimeout) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
	return nil
}

func (c *PahoClient) current() paho.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

func (c *PahoClient) IsConnected() bool {
	client := c.current()
	return client != nil && client.IsConnectionOpen()
}

// Publish sends payload with QoS 0.
func (c *PahoClient) Publish(topic string, payload []byte, retained bool) error {
	client := c.current()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(c.PublishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Subscribe subscribes with QoS 0; messages go to the inbound queue.
func (c *PahoClient) Subscribe(topic string) error {
	client := c.current()
	if client == nil {
		return ErrNotConnected
	}
	token := client.Subscribe(topic, 0, nil)
	if !token.WaitTimeout(c.PublishTimeout) {
		return fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (c *PahoClient) Unsubscribe(topic string) error {
	client := c.current()
	if client == nil {
		return ErrNotConnected
	}
	token := client.Unsubscribe(topic)
	if !token.WaitTimeout(c.PublishTimeout) {
		return fmt.Errorf("unsubscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	return nil
}

// onMessage runs on paho's goroutine.
func (c *PahoClient) onMessage(_ paho.Client, msg paho.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbox.push(Message{Topic: msg.Topic(), Payload: msg.Payload()})
}

// Poll hands queued messages to fn in arrival order.
func (c *PahoClient) Poll(fn func(Message)) {
	c.mu.Lock()
	msgs := c.inbox.drainAll()
	c.mu.Unlock()

	for _, m := range msgs {
		fn(m)
	}
}

// Disconnect closes the session.
func (c *PahoClient) Disconnect() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()
	if client != nil {
		client.Disconnect(1000) // 1 second timeout
	}
}

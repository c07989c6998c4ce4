package aglbridge

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	config "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Config"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	metrics "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Metrics"
)

// BrokerSubscriptions is the fixed set of topic filters the bridge holds on
// the broker. They are re-established on every reconnect before normal
// operation resumes.
var BrokerSubscriptions = []string{
	"provision/new",
	"device/+/status",
	"device/+/telemetry",
	"device/+/resp",
	"farm/+/device/+/resp",
}

// Message is one decoded inbound broker message.
type Message struct {
	DeviceID  string
	Topic     string
	Payload   map[string]interface{}
	Timestamp time.Time
}

// MessageListener receives bridge messages whose topic matches the pattern
// the listener was registered under.
type MessageListener interface {
	OnMessage(msg Message)
}

// ListenerFunc adapts a plain function to the MessageListener interface.
type ListenerFunc func(Message)

// OnMessage calls f(msg).
func (f ListenerFunc) OnMessage(msg Message) { f(msg) }

type inbound struct {
	topic   string
	payload []byte
}

// Bridge owns the single connection to the MQTT broker and fans inbound
// messages out to registered listeners. Messages are dispatched by one
// consumer goroutine so readings for a single device keep arrival order.
type Bridge struct {
	cfg       config.MQTTConfig
	brokerURL string
	logger    *logger.Logger
	metrics   *metrics.Metrics

	client mqtt.Client

	mu        sync.RWMutex
	listeners map[string][]MessageListener

	msgCh    chan inbound
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a bridge. Metrics may be nil.
func New(cfg config.MQTTConfig, brokerURL string, log *logger.Logger, m *metrics.Metrics) *Bridge {
	return &Bridge{
		cfg:       cfg,
		brokerURL: brokerURL,
		logger:    log.WithComponent("bridge"),
		metrics:   m,
		listeners: make(map[string][]MessageListener),
		msgCh:     make(chan inbound, 4096),
	}
}

// Subscribe registers a listener for a topic pattern. The same pattern may
// hold many listeners; registration order carries no meaning.
func (b *Bridge) Subscribe(pattern string, l MessageListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[pattern] = append(b.listeners[pattern], l)
}

// Start connects to the broker and begins dispatching messages. Paho's own
// reconnect machinery is used; it never runs two connection attempts at once.
func (b *Bridge) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(b.brokerURL).
		SetClientID(b.cfg.ClientID).
		SetOrderMatters(true).
		SetKeepAlive(b.cfg.KeepAlive).
		SetPingTimeout(b.cfg.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(b.cfg.ReconnectDelay).
		SetMaxReconnectInterval(b.cfg.ReconnectDelay).
		SetCleanSession(false)

	if b.cfg.BrokerUser != "" {
		opts.SetUsername(b.cfg.BrokerUser)
		opts.SetPassword(b.cfg.BrokerPass)
	}

	if b.cfg.UseTLS {
		tlsCfg, err := b.tlsConfig(b.cfg.CACertPath)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.logger.ErrorWithError(err, "mqtt connection lost")
	}
	opts.OnConnect = func(c mqtt.Client) {
		b.logger.Info("mqtt connected, establishing subscriptions")
		for _, topic := range BrokerSubscriptions {
			if token := c.Subscribe(topic, 1, b.onMessage); token.Wait() && token.Error() != nil {
				b.logger.WithField("topic", topic).ErrorWithError(token.Error(), "subscribe failed")
			}
		}
	}

	b.client = mqtt.NewClient(opts)
	if tk := b.client.Connect(); tk.Wait() && tk.Error() != nil {
		return tk.Error()
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.dispatchLoop(ctx)
	}()

	return nil
}

// Stop disconnects from the broker and drains the dispatch loop.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.client != nil && b.client.IsConnected() {
			b.client.Disconnect(500)
		}
		close(b.msgCh)
	})
	b.wg.Wait()
}

// IsConnected reports whether the broker connection is up.
func (b *Bridge) IsConnected() bool {
	return b.client != nil && b.client.IsConnected()
}

// onMessage runs on paho's read path. It must not block: a full dispatch
// queue drops the message rather than stalling the broker read loop.
func (b *Bridge) onMessage(_ mqtt.Client, m mqtt.Message) {
	select {
	case b.msgCh <- inbound{topic: m.Topic(), payload: m.Payload()}:
		if b.metrics != nil {
			b.metrics.MessagesReceived.Inc()
		}
	default:
		b.logger.WithField("topic", m.Topic()).Warn("dispatch queue full, dropping message")
		if b.metrics != nil {
			b.metrics.MessagesDropped.Inc()
		}
	}
}

func (b *Bridge) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-b.msgCh:
			if !ok {
				return
			}
			b.dispatch(in)
		}
	}
}

// dispatch decodes one inbound message and invokes every listener whose
// pattern matches. A malformed payload is logged and dropped; a panicking
// listener is isolated so its siblings still run.
func (b *Bridge) dispatch(in inbound) {
	var payload map[string]interface{}
	if err := json.Unmarshal(in.payload, &payload); err != nil {
		b.logger.WithField("topic", in.topic).ErrorWithError(err, "unparseable payload, dropping message")
		if b.metrics != nil {
			b.metrics.MessagesDropped.Inc()
		}
		return
	}

	msg := Message{
		DeviceID:  ExtractDeviceID(in.topic),
		Topic:     in.topic,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	var matched []MessageListener
	b.mu.RLock()
	for pattern, ls := range b.listeners {
		if pattern == PatternAll || Matches(in.topic, pattern) {
			matched = append(matched, ls...)
		}
	}
	b.mu.RUnlock()

	for _, l := range matched {
		b.invoke(l, msg)
	}
}

func (b *Bridge) invoke(l MessageListener, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithField("topic", msg.Topic).
				WithField("panic", r).
				Error("listener panicked")
		}
	}()
	l.OnMessage(msg)
}

// Publish sends a payload to a topic at QoS 1 and waits for the broker ack.
// Failures, including ack timeouts, are returned to the caller.
func (b *Bridge) Publish(topic string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}

	if b.metrics != nil {
		b.metrics.PublishTotal.Inc()
	}

	token := b.client.Publish(topic, 1, false, body)
	if !token.WaitTimeout(b.cfg.PublishTimeout) {
		if b.metrics != nil {
			b.metrics.PublishFailures.Inc()
		}
		return fmt.Errorf("publish to %s: ack timeout after %s", topic, b.cfg.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		if b.metrics != nil {
			b.metrics.PublishFailures.Inc()
		}
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	return nil
}

// PublishToDevice sends a command envelope to a device's command topic.
func (b *Bridge) PublishToDevice(deviceID, command string, data interface{}) error {
	payload := map[string]interface{}{
		"command":   command,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	return b.Publish(DeviceCommandTopic(deviceID), payload)
}

func (b *Bridge) tlsConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("bad CA file")
	}
	cfg.RootCAs = cp
	return cfg, nil
}

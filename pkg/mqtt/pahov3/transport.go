// Package pahov3 adapts github.com/eclipse/paho.mqtt.golang (MQTT 3.1.1) to
// the mqtt.Transport interface.
//
// QoS 0 subscriptions and publications are always reported with token 0, in
// the return value and in the completion event.
package pahov3

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benmeehan/imqtt/pkg/mqtt"
	paho "github.com/eclipse/paho.mqtt.golang"
)

const defaultQuiesce = 250 * time.Millisecond

// Client is the part of paho.Client the transport uses.
type Client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

// ClientFactory creates the paho client for one connect attempt.
type ClientFactory func(opts *paho.ClientOptions) Client

func newPahoClient(opts *paho.ClientOptions) Client {
	return paho.NewClient(opts)
}

// Backend creates MQTT 3.1.1 transports.
type Backend struct {
	newClient ClientFactory
	quiesce   time.Duration
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithClientFactory replaces paho.NewClient.
func WithClientFactory(f ClientFactory) BackendOption {
	return func(b *Backend) { b.newClient = f }
}

// WithQuiesce sets how long Disconnect lets in-flight work finish.
func WithQuiesce(d time.Duration) BackendOption {
	return func(b *Backend) { b.quiesce = d }
}

func NewBackend(opts ...BackendOption) *Backend {
	b := &Backend{newClient: newPahoClient, quiesce: defaultQuiesce}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Library() *mqtt.Library { return library }

func (b *Backend) NewTransport(events mqtt.TransportEvents) (mqtt.Transport, error) {
	if events == nil {
		return nil, fmt.Errorf("%w: no transport events", mqtt.ErrInvalidConfig)
	}
	t := &Transport{events: events, newClient: b.newClient, quiesce: b.quiesce}
	addSink(t)
	return t, nil
}

// Transport implements mqtt.Transport on paho.mqtt.golang. A new paho client
// is created for every Connect so the options always match the attempt.
type Transport struct {
	events    mqtt.TransportEvents
	newClient ClientFactory
	quiesce   time.Duration

	mu        sync.Mutex
	client    Client
	retryStop chan struct{} // closed when client stops being the current one
	closed    bool

	nextToken atomic.Uint32
}

func (t *Transport) Version() string { return library.Version() }

func (t *Transport) IsConnected() bool {
	client := t.current()
	return client != nil && client.IsConnected()
}

// Connect starts the connection. Success is reported by paho's on-connect
// handler, which also fires after every automatic reconnect. Every failed
// attempt is reported from its connect token; with auto reconnect the
// attempt is repeated after the backoff delay.
func (t *Transport) Connect(ctx context.Context, opts mqtt.ConnectOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return mqtt.ErrClosed
	}
	previous := t.client
	if previous != nil && previous.IsConnected() {
		t.mu.Unlock()
		return errors.New("already connected")
	}
	client := t.newClient(t.clientOptions(opts))
	t.client = client
	t.stopRetryLocked()
	stop := make(chan struct{})
	t.retryStop = stop
	t.mu.Unlock()

	if previous != nil {
		// stops a reconnect loop left over from the last attempt
		previous.Disconnect(0)
	}
	if !opts.ExponentialBackoff {
		t.events.OnLog(mqtt.LogDebug, "paho.mqtt.golang always doubles the reconnect delay up to the maximum")
	}

	token := client.Connect()
	go t.watchConnect(client, token, opts, stop)
	return nil
}

// watchConnect reports the outcome of failed connect attempts of client and
// starts the next one until an attempt succeeds, auto reconnect is off or
// stop is closed.
func (t *Transport) watchConnect(client Client, token paho.Token, opts mqtt.ConnectOptions, stop <-chan struct{}) {
	for attempt := 0; ; attempt++ {
		select {
		case <-token.Done():
		case <-stop:
			return
		}
		err := token.Error()
		if err == nil {
			return
		}
		reason, cerr := connectError(token, err)
		t.events.OnConnect(cerr, reason)
		if !opts.AutoReconnect {
			return
		}

		delay := mqtt.NextDelay(attempt, opts.ReconnectMin, opts.ReconnectMax, opts.ExponentialBackoff)
		t.events.OnLog(mqtt.LogInfo, fmt.Sprintf("Next connect attempt in %s", delay))
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			return
		}

		t.mu.Lock()
		if t.client != client {
			t.mu.Unlock()
			return
		}
		token = client.Connect()
		t.mu.Unlock()
	}
}

func (t *Transport) stopRetryLocked() {
	if t.retryStop != nil {
		close(t.retryStop)
		t.retryStop = nil
	}
}

// Disconnect ends the session. MQTT 3.1.1 carries no disconnect reason, so
// reason is only logged.
func (t *Transport) Disconnect(ctx context.Context, reason mqtt.Mqtt5ReasonCode) error {
	client := t.current()
	if client == nil {
		return mqtt.ErrNotConnected
	}
	if !client.IsConnected() {
		t.release(client)
		client.Disconnect(0)
		return mqtt.ErrNotConnected
	}
	if reason != mqtt.Mqtt5Success {
		t.events.OnLog(mqtt.LogDebug, fmt.Sprintf("Disconnect reason %s is not sent over MQTT 3.1.1", reason))
	}

	t.release(client)
	client.Disconnect(uint(t.quiesce / time.Millisecond))
	t.events.OnDisconnect(nil, mqtt.V311Reason(byte(mqtt.MqttAccepted)))
	return nil
}

func (t *Transport) Subscribe(topic string, qos mqtt.QOS, opts mqtt.SubscribeOptions) (int, error) {
	client, err := t.connected()
	if err != nil {
		return 0, err
	}
	if opts.NoLocal || opts.RetainHandling != mqtt.RetainSendAlways {
		t.events.OnLog(mqtt.LogDebug, "MQTT 3.1.1 cannot honor no-local or retain handling, subscribing without them")
	}

	id := 0
	if qos != mqtt.QOS0 {
		id = t.allocToken()
	}
	token := client.Subscribe(topic, byte(qos), t.onMessage)
	t.await(token, func(err error) {
		reason := mqtt.V311Reason(byte(mqtt.MqttAccepted))
		if err == nil {
			if granted, ok := grantedQoS(token, topic); ok && granted == byte(mqtt.MqttSubackFailure) {
				reason = mqtt.V311Reason(granted)
				err = fmt.Errorf("subscription to %s refused by broker", topic)
			}
		}
		t.events.OnSubscribe(id, wrapError(err), reason)
	})
	return id, nil
}

func (t *Transport) Unsubscribe(topic string) (int, error) {
	client, err := t.connected()
	if err != nil {
		return 0, err
	}

	id := t.allocToken()
	token := client.Unsubscribe(topic)
	t.await(token, func(err error) {
		t.events.OnUnsubscribe(id, wrapError(err), mqtt.V311Reason(byte(mqtt.MqttAccepted)))
	})
	return id, nil
}

func (t *Transport) Publish(msg *mqtt.Message) (int, error) {
	client, err := t.connected()
	if err != nil {
		return 0, err
	}
	if msg.HasProperties() {
		t.events.OnLog(mqtt.LogDebug, fmt.Sprintf("MQTT 5 properties of message on %s are not sent over MQTT 3.1.1", msg.Topic()))
	}

	token := client.Publish(msg.Topic(), byte(msg.QOS()), msg.Retained(), msg.Payload())
	id := 0
	if msg.QOS() != mqtt.QOS0 {
		if pt, ok := token.(interface{ MessageID() uint16 }); ok {
			id = int(pt.MessageID())
		}
		if id == 0 {
			id = t.allocToken()
		}
	}
	t.await(token, func(err error) {
		t.events.OnPublish(id, wrapError(err), mqtt.V311Reason(byte(mqtt.MqttAccepted)))
	})
	return id, nil
}

// Close stops the paho client, including any pending reconnect loop.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	client := t.client
	t.client = nil
	t.stopRetryLocked()
	t.mu.Unlock()
	removeSink(t)

	if client != nil {
		client.Disconnect(0)
	}
	return nil
}

func (t *Transport) current() Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

// release forgets client unless a newer Connect already replaced it.
func (t *Transport) release(client Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == client {
		t.client = nil
		t.stopRetryLocked()
	}
}

func (t *Transport) connected() (Client, error) {
	client := t.current()
	if client == nil || !client.IsConnected() {
		return nil, mqtt.ErrNotConnected
	}
	return client, nil
}

// allocToken returns a positive token; 0 is reserved for QoS 0.
func (t *Transport) allocToken() int {
	for {
		if id := t.nextToken.Add(1) & 0x7fffffff; id != 0 {
			return int(id)
		}
	}
}

func (t *Transport) await(token paho.Token, done func(err error)) {
	go func() {
		<-token.Done()
		done(token.Error())
	}()
}

func (t *Transport) onMessage(_ paho.Client, m paho.Message) {
	msg := mqtt.NewMessage(m.Topic(), m.Payload(), mqtt.QOS(m.Qos()), m.Retained())
	msg.MessageID = int(m.MessageID())
	t.events.OnMessage(msg)
}

func (t *Transport) clientOptions(opts mqtt.ConnectOptions) *paho.ClientOptions {
	o := paho.NewClientOptions()

	scheme := "tcp"
	if opts.TLSConfig != nil {
		scheme = "ssl"
		o.SetTLSConfig(opts.TLSConfig)
	}
	o.AddBroker(fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))))
	o.SetClientID(opts.ClientID)
	if opts.Username != "" {
		o.SetUsername(opts.Username)
		o.SetPassword(opts.Password)
	}
	o.SetProtocolVersion(4)
	o.SetCleanSession(opts.CleanSession)
	o.SetKeepAlive(opts.KeepAlive)

	// paho retries only after a connection was lost; a failed first connect
	// completes its token and watchConnect retries it
	o.SetAutoReconnect(opts.AutoReconnect)
	o.SetConnectRetry(false)
	o.SetMaxReconnectInterval(opts.ReconnectMax)

	// inbound messages are handed over in arrival order
	o.SetOrderMatters(true)
	o.SetDefaultPublishHandler(t.onMessage)

	o.SetOnConnectHandler(func(paho.Client) {
		t.events.OnConnect(nil, mqtt.V311Reason(byte(mqtt.MqttAccepted)))
	})
	o.SetConnectionLostHandler(func(_ paho.Client, err error) {
		t.events.OnConnectionLost(fmt.Errorf("%w: %v", mqtt.ErrConnectionLost, err), mqtt.V311Reason(byte(mqtt.MqttServerUnavailable)))
	})
	o.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		t.events.OnLog(mqtt.LogInfo, "Reconnecting to broker")
	})
	return o
}

// connectError maps a failed connect token onto the facade errors. CONNACK
// codes 4 and 5 are authorization failures; paho reports network failures
// with codes above the CONNACK range.
func connectError(token paho.Token, err error) (mqtt.ProtocolReason, error) {
	code := byte(mqtt.MqttServerUnavailable)
	if ct, ok := token.(interface{ ReturnCode() byte }); ok {
		code = ct.ReturnCode()
	}
	reason := mqtt.V311Reason(code)

	switch mqtt.MqttReasonCode(code) {
	case mqtt.MqttBadUsernameOrPassword, mqtt.MqttNotAuthorized:
		return reason, fmt.Errorf("%w: %v", mqtt.ErrNotAuthorized, err)
	}
	if werr := wrapError(err); werr != err {
		return reason, werr
	}
	if code > byte(mqtt.MqttNotAuthorized) {
		return reason, fmt.Errorf("%w: %v", mqtt.ErrNotConnected, err)
	}
	return reason, err
}

func grantedQoS(token paho.Token, topic string) (byte, bool) {
	st, ok := token.(interface{ Result() map[string]byte })
	if !ok {
		return 0, false
	}
	granted, ok := st.Result()[topic]
	return granted, ok
}

// wrapError attaches the facade sentinel that matches a paho error.
func wrapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, paho.ErrNotConnected):
		return fmt.Errorf("%w: %v", mqtt.ErrNotConnected, err)
	case isTLSError(err):
		return fmt.Errorf("%w: %w", mqtt.ErrTLS, err)
	default:
		return err
	}
}

// paho flattens handshake errors into strings in some paths.
func isTLSError(err error) bool {
	s := err.Error()
	return strings.Contains(s, "x509:") || strings.Contains(s, "tls:")
}

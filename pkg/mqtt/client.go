package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benmeehan/imqtt/pkg/file"
	cmap "github.com/orcaman/concurrent-map/v2"
)

type opKind uint8

const (
	opSubscribe opKind = iota
	opUnsubscribe
	opPublish
)

func (k opKind) String() string {
	switch k {
	case opSubscribe:
		return "Subscribe"
	case opUnsubscribe:
		return "Unsubscribe"
	default:
		return "Publish"
	}
}

type opKey struct {
	kind  opKind
	token int
}

// inflightOp counts operations sharing one key. The count goes negative when a
// completion overtakes the bookkeeping of its own initiation.
type inflightOp struct {
	topic   string
	started time.Time
	count   int
}

// Option customizes a Client.
type Option func(*Client)

// WithFileOperations replaces the file access used to load TLS material.
func WithFileOperations(fileClient file.FileOperations) Option {
	return func(c *Client) { c.fileClient = fileClient }
}

// Client is the asynchronous MQTT facade. Operations return once the back-end
// has accepted them; outcomes arrive through the installed callbacks, keyed by
// the token handed out at initiation.
type Client struct {
	params     InitializeParameters
	fileClient file.FileOperations
	backoff    *Backoff
	tlsConfig  *tls.Config

	library   *Library
	transport Transport
	callbacks *callbackRegistry
	queue     *DispatchQueue

	state    atomic.Int32
	inflight cmap.ConcurrentMap[opKey, inflightOp]

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewClient validates params, takes a reference on the back-end library and
// creates the transport. No network activity happens until ConnectAsync.
func NewClient(params InitializeParameters, backend Backend, opts ...Option) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: no backend", ErrInvalidConfig)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		params:     params,
		fileClient: file.NewFileService(),
		callbacks:  newCallbackRegistry(params.Callbacks),
		inflight: cmap.NewWithCustomShardingFunction[opKey, inflightOp](func(k opKey) uint32 {
			return uint32(k.token)*3 + uint32(k.kind)
		}),
	}
	for _, opt := range opts {
		opt(c)
	}

	var err error
	if c.backoff, err = params.backoff(); err != nil {
		return nil, err
	}
	if c.tlsConfig, err = LoadTLSConfig(c.fileClient, params.TLS); err != nil {
		return nil, err
	}

	c.library = backend.Library()
	if err := c.library.Acquire(); err != nil {
		return nil, err
	}
	if c.transport, err = backend.NewTransport(eventSink{c}); err != nil {
		c.library.Release()
		return nil, fmt.Errorf("failed to create %s transport: %w", c.library.Name(), err)
	}

	c.queue = NewDispatchQueue(registryLog{c.callbacks}, registryMessages{c.callbacks}, params.Queue)
	c.logf(LogInfo, "MQTT client %s created using %s", params.ClientID, c.transport.Version())
	return c, nil
}

// LibVersion returns the name and version of the back-end library.
func (c *Client) LibVersion() string {
	return c.transport.Version()
}

// State returns the connection state machine value.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// ConnectionStatus reports Connected only while the state is CONNECTED.
func (c *Client) ConnectionStatus() ConnectionStatus {
	if c.State() == StateConnected {
		return Connected
	}
	return Disconnected
}

// Pending returns the number of subscribe, unsubscribe and publish operations
// that were accepted but have not completed yet.
func (c *Client) Pending() int {
	n := 0
	for _, op := range c.inflight.Items() {
		if op.count > 0 {
			n += op.count
		}
	}
	return n
}

// QueueLen returns the number of inbound messages waiting for the message callback.
func (c *Client) QueueLen() int { return c.queue.Len() }

// QueueDropped returns the number of inbound messages the dispatch queue discarded.
func (c *Client) QueueDropped() uint64 { return c.queue.Dropped() }

// SetCallbacks replaces all four callback slots. Nil slots select the defaults.
func (c *Client) SetCallbacks(cbs Callbacks) { c.callbacks.set(cbs) }

func (c *Client) SetLogCallbacks(cb LogCallbacks) {
	c.callbacks.update(func(cbs *Callbacks) { cbs.Log = cb })
}

func (c *Client) SetConnectionCallbacks(cb ConnectionCallbacks) {
	c.callbacks.update(func(cbs *Callbacks) { cbs.Connection = cb })
}

func (c *Client) SetCommandCallbacks(cb CommandCallbacks) {
	c.callbacks.update(func(cbs *Callbacks) { cbs.Command = cb })
}

func (c *Client) SetMessageCallbacks(cb MessageCallbacks) {
	c.callbacks.update(func(cbs *Callbacks) { cbs.Message = cb })
}

// ConnectAsync starts connecting to the broker. The result only says whether
// the attempt was accepted; the outcome is reported to the connection callback.
func (c *Client) ConnectAsync(ctx context.Context) ReasonCode {
	if c.closed.Load() {
		return Normalize(ErrClosed, "Connect", c.log())
	}
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return Normalize(fmt.Errorf("connect rejected in state %s", c.State()), "Connect", c.log())
	}

	opts := ConnectOptions{
		Host:               c.params.Host,
		Port:               c.params.Port,
		ClientID:           c.params.ClientID,
		Username:           c.params.Username,
		Password:           c.params.Password,
		KeepAlive:          c.params.KeepAlive,
		CleanSession:       c.params.CleanSession,
		TLSConfig:          c.tlsConfig,
		ReconnectMin:       c.backoff.MinDelay(),
		ReconnectMax:       c.backoff.MaxDelay(),
		AutoReconnect:      c.params.AutoReconnect,
		ExponentialBackoff: c.params.ExponentialBackoff,
	}
	c.logf(LogInfo, "Start connecting to broker %s:%d", opts.Host, opts.Port)
	c.logf(LogDebug, "Reconnect delay min: %s, max: %s", opts.ReconnectMin, opts.ReconnectMax)

	rc := Normalize(c.transport.Connect(ctx, opts), "Connect", c.log())
	if rc != ReasonOK {
		c.state.CompareAndSwap(int32(StateConnecting), int32(StateDisconnected))
	}
	return rc
}

// DisconnectAsync asks the broker to close the session with reason. It always
// reaches the transport, so calling it while disconnected yields NO_CONNECTION.
func (c *Client) DisconnectAsync(ctx context.Context, reason Mqtt5ReasonCode) ReasonCode {
	prev := c.State()
	if prev == StateConnected || prev == StateConnecting {
		c.state.CompareAndSwap(int32(prev), int32(StateDisconnecting))
	}

	c.logf(LogInfo, "Disconnecting from broker, reason %s", reason)
	rc := Normalize(c.transport.Disconnect(ctx, reason), "Disconnect", c.log())
	switch rc {
	case ReasonOK:
	case ReasonNoConnection:
		c.state.Store(int32(StateDisconnected))
	default:
		c.state.CompareAndSwap(int32(StateDisconnecting), int32(prev))
	}
	return rc
}

// SubscribeAsync subscribes to topic. Retained messages are skipped when
// getRetained is false; MQTT 3.1.1 back-ends cannot honor that.
func (c *Client) SubscribeAsync(topic string, qos QOS, token *int, getRetained bool) ReasonCode {
	if c.closed.Load() {
		return Normalize(ErrClosed, "Subscribe", c.log())
	}

	opts := SubscribeOptions{NoLocal: !c.params.AllowLocalTopics}
	if !getRetained {
		opts.RetainHandling = RetainSendNever
	}

	t, err := c.transport.Subscribe(topic, qos, opts)
	rc := Normalize(err, fmt.Sprintf("Subscribe %s", topic), c.log())
	if rc == ReasonOK {
		c.begin(opSubscribe, t, topic, token)
	}
	return rc
}

// UnSubscribeAsync removes the subscription for topic.
func (c *Client) UnSubscribeAsync(topic string, token *int) ReasonCode {
	if c.closed.Load() {
		return Normalize(ErrClosed, "Unsubscribe", c.log())
	}

	t, err := c.transport.Unsubscribe(topic)
	rc := Normalize(err, fmt.Sprintf("Unsubscribe %s", topic), c.log())
	if rc == ReasonOK {
		c.begin(opUnsubscribe, t, topic, token)
	}
	return rc
}

// PublishAsync sends msg. A message with malformed MQTT 5 properties is
// rejected with GENERAL_ERROR before anything is sent.
func (c *Client) PublishAsync(msg *Message, token *int) ReasonCode {
	if msg == nil {
		return Normalize(fmt.Errorf("%w: nil message", ErrInvalidConfig), "Publish", c.log())
	}
	if c.closed.Load() {
		return Normalize(ErrClosed, "Publish", c.log())
	}
	if err := ValidateProperties(msg); err != nil {
		c.logf(LogError, "Failed to encode MQTT 5 properties, ignoring message on %s: %v", msg.Topic(), err)
		return ReasonGeneralError
	}

	t, err := c.transport.Publish(msg)
	rc := Normalize(err, fmt.Sprintf("Publish %s", msg.Topic()), c.log())
	if rc == ReasonOK {
		c.begin(opPublish, t, msg.Topic(), token)
	}
	return rc
}

// Close stops the dispatch queue, disconnects, closes the transport and drops
// the library reference, in that order. Later calls return the first result.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.queue.Stop()

		var errs []error
		if c.State() != StateDisconnected || c.transport.IsConnected() {
			c.state.Store(int32(StateDisconnecting))
			if err := c.transport.Disconnect(ctx, Mqtt5Success); err != nil && !errors.Is(err, ErrNotConnected) {
				errs = append(errs, fmt.Errorf("disconnect: %w", err))
			}
		}
		if err := c.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
		c.library.Release()
		c.state.Store(int32(StateDisconnected))

		c.closeErr = errors.Join(errs...)
		c.logf(LogInfo, "MQTT client %s closed", c.params.ClientID)
	})
	return c.closeErr
}

// begin records an accepted operation and hands its token to the caller.
func (c *Client) begin(kind opKind, t int, topic string, token *int) {
	if token != nil {
		*token = t
	}
	c.track(opKey{kind: kind, token: t}, topic, 1)
	c.logf(LogDebug, "%s accepted for %s, token %d", kind, topic, t)
}

// finish removes a completed operation and returns what was recorded for it.
func (c *Client) finish(kind opKind, t int) inflightOp {
	return c.track(opKey{kind: kind, token: t}, "", -1)
}

func (c *Client) track(key opKey, topic string, delta int) inflightOp {
	var op inflightOp
	c.inflight.Upsert(key, inflightOp{}, func(exist bool, cur, _ inflightOp) inflightOp {
		if !exist {
			cur = inflightOp{started: time.Now()}
		}
		if topic != "" {
			cur.topic = topic
		}
		op = cur
		cur.count += delta
		return cur
	})
	c.inflight.RemoveCb(key, func(_ opKey, v inflightOp, exists bool) bool {
		return exists && v.count == 0
	})
	return op
}

func (c *Client) log() LogCallbacks {
	return c.callbacks.load().Log
}

func (c *Client) logf(level LogLevel, format string, args ...any) {
	c.log().Log(level, fmt.Sprintf(format, args...))
}

// Transport events. These run on transport goroutines.

func (c *Client) onConnect(err error, reason ProtocolReason) {
	rc := Normalize(err, "Connect completion", c.log())
	status := Disconnected
	if rc == ReasonOK {
		c.state.Store(int32(StateConnected))
		status = Connected
		c.logf(LogInfo, "Connected to broker %s:%d", c.params.Host, c.params.Port)
	} else {
		c.state.Store(int32(StateDisconnected))
	}
	c.callbacks.load().Connection.OnConnectionStatusChanged(status, rc, reason)
}

func (c *Client) onConnectionLost(err error, reason ProtocolReason) {
	if err == nil {
		err = ErrConnectionLost
	}
	c.state.Store(int32(StateDisconnected))
	rc := Normalize(err, "Connection lost", c.log())
	c.callbacks.load().Connection.OnConnectionStatusChanged(Disconnected, rc, reason)
}

func (c *Client) onDisconnect(err error, reason ProtocolReason) {
	c.state.Store(int32(StateDisconnected))
	rc := Normalize(err, "Disconnect completion", c.log())
	c.callbacks.load().Connection.OnConnectionStatusChanged(Disconnected, rc, reason)
}

func (c *Client) onSubscribe(token int, err error, reason ProtocolReason) {
	rc := c.complete(opSubscribe, token, err)
	c.callbacks.load().Command.OnSubscribe(token, rc, reason)
}

func (c *Client) onUnsubscribe(token int, err error, reason ProtocolReason) {
	rc := c.complete(opUnsubscribe, token, err)
	c.callbacks.load().Command.OnUnSubscribe(token, rc, reason)
}

func (c *Client) onPublish(token int, err error, reason ProtocolReason) {
	rc := c.complete(opPublish, token, err)
	c.callbacks.load().Command.OnPublish(token, rc, reason)
}

func (c *Client) onMessage(msg *Message) {
	c.queue.Enqueue(msg)
}

func (c *Client) onLog(level LogLevel, text string) {
	c.log().Log(level, text)
}

func (c *Client) complete(kind opKind, token int, err error) ReasonCode {
	op := c.finish(kind, token)
	label := fmt.Sprintf("%s completion, token %d", kind, token)
	if op.topic != "" {
		label = fmt.Sprintf("%s completion for %s, token %d after %s", kind, op.topic, token, time.Since(op.started).Round(time.Millisecond))
	}
	return Normalize(err, label, c.log())
}

// registryLog and registryMessages always forward to the current snapshot, so
// the dispatch queue follows callback replacements.
type registryLog struct{ r *callbackRegistry }

func (l registryLog) Log(level LogLevel, text string) { l.r.load().Log.Log(level, text) }

type registryMessages struct{ r *callbackRegistry }

func (m registryMessages) OnMqttMessage(msg *Message) { m.r.load().Message.OnMqttMessage(msg) }

// eventSink is the TransportEvents view of a Client.
type eventSink struct{ c *Client }

func (e eventSink) OnConnect(err error, reason ProtocolReason)        { e.c.onConnect(err, reason) }
func (e eventSink) OnConnectionLost(err error, reason ProtocolReason) { e.c.onConnectionLost(err, reason) }
func (e eventSink) OnDisconnect(err error, reason ProtocolReason)     { e.c.onDisconnect(err, reason) }

func (e eventSink) OnSubscribe(token int, err error, reason ProtocolReason) {
	e.c.onSubscribe(token, err, reason)
}

func (e eventSink) OnUnsubscribe(token int, err error, reason ProtocolReason) {
	e.c.onUnsubscribe(token, err, reason)
}

func (e eventSink) OnPublish(token int, err error, reason ProtocolReason) {
	e.c.onPublish(token, err, reason)
}

func (e eventSink) OnMessage(msg *Message)             { e.c.onMessage(msg) }
func (e eventSink) OnLog(level LogLevel, text string) { e.c.onLog(level, text) }

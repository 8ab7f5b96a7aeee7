// Package pahov5 adapts the low level client of github.com/eclipse/paho.golang
// (MQTT 5) to the mqtt.Transport interface. The transport owns the network
// connection and its own reconnect loop, so a disconnect can carry a reason
// code.
package pahov5

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/eclipse/paho.golang/packets"
	"github.com/eclipse/paho.golang/paho"
)

// Client is the part of *paho.Client the transport uses.
type Client interface {
	Connect(ctx context.Context, cp *paho.Connect) (*paho.Connack, error)
	Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error)
	Unsubscribe(ctx context.Context, u *paho.Unsubscribe) (*paho.Unsuback, error)
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Disconnect(d *paho.Disconnect) error
}

// ClientFactory creates the paho client for one network connection.
type ClientFactory func(cfg paho.ClientConfig) Client

// Dialer opens the network connection for one connect attempt.
type Dialer func(ctx context.Context, opts mqtt.ConnectOptions) (net.Conn, error)

func newPahoClient(cfg paho.ClientConfig) Client {
	return paho.NewClient(cfg)
}

// Backend creates MQTT 5 transports.
type Backend struct {
	newClient ClientFactory
	dial      Dialer
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithClientFactory replaces paho.NewClient.
func WithClientFactory(f ClientFactory) BackendOption {
	return func(b *Backend) { b.newClient = f }
}

// WithDialer replaces the TCP/TLS dialer.
func WithDialer(d Dialer) BackendOption {
	return func(b *Backend) { b.dial = d }
}

func NewBackend(opts ...BackendOption) *Backend {
	b := &Backend{newClient: newPahoClient, dial: dial}
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
	return &Transport{events: events, newClient: b.newClient, dial: b.dial}, nil
}

// stopRequest asks a session to end; reply receives the outcome.
type stopRequest struct {
	reason mqtt.Mqtt5ReasonCode
	reply  chan error
}

// session is the connection loop started by one Connect call.
type session struct {
	cancel context.CancelFunc
	stop   chan stopRequest
	done   chan struct{}
}

// end hands req to the loop and cancels whatever it is waiting on. Only the
// first request of a session is kept.
func (s *session) end(req stopRequest) {
	select {
	case s.stop <- req:
	default:
	}
	s.cancel()
}

// connLoss is what paho reports when a live connection ends unexpectedly.
type connLoss struct {
	err    error
	reason mqtt.ProtocolReason
}

// Transport implements mqtt.Transport on paho.golang.
type Transport struct {
	events    mqtt.TransportEvents
	newClient ClientFactory
	dial      Dialer

	mu      sync.Mutex
	session *session
	client  Client
	closed  bool

	nextToken atomic.Uint32
}

func (t *Transport) Version() string { return library.Version() }

func (t *Transport) IsConnected() bool {
	return t.current() != nil
}

// Connect starts the connection loop and blocks until the first attempt has
// an outcome or ctx ends. The outcome itself is delivered through OnConnect.
func (t *Transport) Connect(ctx context.Context, opts mqtt.ConnectOptions) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return mqtt.ErrClosed
	}
	if t.session != nil {
		t.mu.Unlock()
		return errors.New("connection already in progress")
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{cancel: cancel, stop: make(chan stopRequest, 1), done: make(chan struct{})}
	t.session = s
	t.mu.Unlock()

	first := make(chan error, 1)
	go t.run(runCtx, s, opts, first)

	select {
	case <-first:
		return nil
	case <-ctx.Done():
		t.abandon(s)
		return ctx.Err()
	}
}

// Disconnect ends the connection loop. A live connection is closed with a
// DISCONNECT packet carrying reason.
func (t *Transport) Disconnect(ctx context.Context, reason mqtt.Mqtt5ReasonCode) error {
	t.mu.Lock()
	s := t.session
	t.session = nil
	t.mu.Unlock()
	if s == nil {
		return mqtt.ErrNotConnected
	}

	req := stopRequest{reason: reason, reply: make(chan error, 1)}
	s.end(req)

	select {
	case err := <-req.reply:
		return err
	case <-s.done:
		// the loop ended on its own before it saw the request
		select {
		case err := <-req.reply:
			return err
		default:
			return mqtt.ErrNotConnected
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) Subscribe(topic string, qos mqtt.QOS, opts mqtt.SubscribeOptions) (int, error) {
	client, err := t.connected()
	if err != nil {
		return 0, err
	}

	id := t.allocToken()
	sub := &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic:          topic,
			QoS:            byte(qos),
			NoLocal:        opts.NoLocal,
			RetainHandling: byte(opts.RetainHandling),
		}},
	}
	go func() {
		suback, err := client.Subscribe(context.Background(), sub)
		reason := mqtt.V5Reason(mqtt.Mqtt5UnspecifiedError)
		if suback != nil && len(suback.Reasons) > 0 {
			reason = mqtt.V5Reason(mqtt.Mqtt5ReasonCode(suback.Reasons[0]))
		} else if err == nil {
			reason = mqtt.V5Reason(mqtt.Mqtt5ReasonCode(qos))
		}
		t.events.OnSubscribe(id, wrapError(refused(err, reason, "subscription to "+topic), reason), reason)
	}()
	return id, nil
}

func (t *Transport) Unsubscribe(topic string) (int, error) {
	client, err := t.connected()
	if err != nil {
		return 0, err
	}

	id := t.allocToken()
	go func() {
		unsuback, err := client.Unsubscribe(context.Background(), &paho.Unsubscribe{Topics: []string{topic}})
		reason := mqtt.V5Reason(mqtt.Mqtt5UnspecifiedError)
		if unsuback != nil && len(unsuback.Reasons) > 0 {
			reason = mqtt.V5Reason(mqtt.Mqtt5ReasonCode(unsuback.Reasons[0]))
		} else if err == nil {
			reason = mqtt.V5Reason(mqtt.Mqtt5Success)
		}
		t.events.OnUnsubscribe(id, wrapError(refused(err, reason, "unsubscribe from "+topic), reason), reason)
	}()
	return id, nil
}

// Publish sends msg. QoS 0 is written before Publish returns, so QoS 0
// messages leave in call order; QoS 1 and 2 wait for their acknowledgement on
// a separate goroutine.
func (t *Transport) Publish(msg *mqtt.Message) (int, error) {
	client, err := t.connected()
	if err != nil {
		return 0, err
	}

	id := t.allocToken()
	p := toPublish(msg)
	complete := func(resp *paho.PublishResponse, err error) {
		reason := mqtt.V5Reason(mqtt.Mqtt5Success)
		if resp != nil {
			reason = mqtt.V5Reason(mqtt.Mqtt5ReasonCode(resp.ReasonCode))
		} else if err != nil {
			reason = mqtt.V5Reason(mqtt.Mqtt5UnspecifiedError)
		}
		t.events.OnPublish(id, wrapError(refused(err, reason, "publish to "+msg.Topic()), reason), reason)
	}

	if msg.QOS() == mqtt.QOS0 {
		resp, err := client.Publish(context.Background(), p)
		go complete(resp, err)
		return id, nil
	}
	go func() {
		resp, err := client.Publish(context.Background(), p)
		complete(resp, err)
	}()
	return id, nil
}

// Close ends the connection loop, if any, and rejects further Connect calls.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	s := t.session
	t.session = nil
	t.mu.Unlock()

	if s != nil {
		s.end(stopRequest{reason: mqtt.Mqtt5Success})
		<-s.done
	}
	return nil
}

// abandon stops a session whose Connect caller gave up waiting.
func (t *Transport) abandon(s *session) {
	t.mu.Lock()
	if t.session == s {
		t.session = nil
	}
	t.mu.Unlock()

	s.end(stopRequest{reason: mqtt.Mqtt5Success})
}

func (t *Transport) run(ctx context.Context, s *session, opts mqtt.ConnectOptions, first chan<- error) {
	defer func() {
		t.mu.Lock()
		if t.session == s {
			t.session = nil
		}
		t.mu.Unlock()
		close(s.done)
	}()

	notified := false
	notify := func(err error) {
		if !notified {
			notified = true
			first <- err
		}
	}
	defer notify(mqtt.ErrNotConnected)

	for attempt := 0; ; attempt++ {
		lost := make(chan connLoss, 1)
		client, connack, err := t.connectOnce(ctx, opts, lost)
		if ctx.Err() != nil {
			t.finish(s, client)
			return
		}

		if err != nil {
			reason, cerr := connectError(connack, err)
			t.events.OnConnect(cerr, reason)
			notify(cerr)
			if !opts.AutoReconnect || !t.wait(ctx, mqtt.NextDelay(attempt, opts.ReconnectMin, opts.ReconnectMax, opts.ExponentialBackoff)) {
				t.finish(s, nil)
				return
			}
			continue
		}

		t.setClient(client)
		t.events.OnConnect(nil, mqtt.V5Reason(mqtt.Mqtt5ReasonCode(connack.ReasonCode)))
		notify(nil)
		attempt = -1

		select {
		case <-ctx.Done():
			t.setClient(nil)
			t.finish(s, client)
			return
		case loss := <-lost:
			t.setClient(nil)
			t.events.OnConnectionLost(loss.err, loss.reason)
		}

		if !opts.AutoReconnect || !t.wait(ctx, opts.ReconnectMin) {
			t.finish(s, nil)
			return
		}
		t.events.OnLog(mqtt.LogInfo, "Reconnecting to broker")
	}
}

// finish answers the pending stop request, sending DISCONNECT on client if
// the session was connected.
func (t *Transport) finish(s *session, client Client) {
	req := stopRequest{reason: mqtt.Mqtt5Success}
	select {
	case req = <-s.stop:
	default:
	}
	t.setClient(nil)

	reply := func(err error) {
		if req.reply != nil {
			req.reply <- err
		}
	}
	if client == nil {
		reply(mqtt.ErrNotConnected)
		return
	}

	err := client.Disconnect(&paho.Disconnect{ReasonCode: byte(req.reason)})
	reason := mqtt.V5Reason(req.reason)
	t.events.OnDisconnect(wrapError(err, reason), reason)
	reply(nil)
}

func (t *Transport) connectOnce(ctx context.Context, opts mqtt.ConnectOptions, lost chan<- connLoss) (Client, *paho.Connack, error) {
	conn, err := t.dial(ctx, opts)
	if err != nil {
		return nil, nil, err
	}

	report := func(loss connLoss) {
		select {
		case lost <- loss:
		default:
		}
	}
	client := t.newClient(paho.ClientConfig{
		ClientID: opts.ClientID,
		Conn:     packets.NewThreadSafeConn(conn),
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				t.events.OnMessage(fromPublish(pr.Packet))
				return true, nil
			},
		},
		OnClientError: func(err error) {
			report(connLoss{
				err:    fmt.Errorf("%w: %v", mqtt.ErrConnectionLost, err),
				reason: mqtt.V5Reason(mqtt.Mqtt5UnspecifiedError),
			})
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			code := mqtt.Mqtt5ReasonCode(d.ReasonCode)
			report(connLoss{
				err:    fmt.Errorf("%w: server sent DISCONNECT %s", mqtt.ErrConnectionLost, code),
				reason: mqtt.V5Reason(code),
			})
		},
	})
	if l, ok := client.(errorLogSetter); ok {
		l.SetErrorLogger(eventLogger{events: t.events})
	}

	cp := &paho.Connect{
		ClientID:   opts.ClientID,
		KeepAlive:  uint16(opts.KeepAlive / time.Second),
		CleanStart: opts.CleanSession,
	}
	if opts.Username != "" {
		cp.UsernameFlag = true
		cp.Username = opts.Username
		cp.PasswordFlag = true
		cp.Password = []byte(opts.Password)
	}

	connack, err := client.Connect(ctx, cp)
	if err != nil {
		return nil, connack, err
	}
	return client, connack, nil
}

// wait sleeps for d; it returns false if ctx ended first.
func (t *Transport) wait(ctx context.Context, d time.Duration) bool {
	t.events.OnLog(mqtt.LogDebug, fmt.Sprintf("Next connect attempt in %s", d))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (t *Transport) setClient(client Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.client = client
}

func (t *Transport) current() Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

func (t *Transport) connected() (Client, error) {
	client := t.current()
	if client == nil {
		return nil, mqtt.ErrNotConnected
	}
	return client, nil
}

func (t *Transport) allocToken() int {
	for {
		if id := t.nextToken.Add(1) & 0x7fffffff; id != 0 {
			return int(id)
		}
	}
}

func dial(ctx context.Context, opts mqtt.ConnectOptions) (net.Conn, error) {
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	if opts.TLSConfig == nil {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", mqtt.ErrNotConnected, err)
		}
		return conn, nil
	}

	d := &tls.Dialer{Config: opts.TLSConfig}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return nil, fmt.Errorf("%w: %w", mqtt.ErrNotConnected, err)
		}
		return nil, fmt.Errorf("%w: %w", mqtt.ErrTLS, err)
	}
	return conn, nil
}

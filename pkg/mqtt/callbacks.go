package mqtt

import (
	"sync"
	"sync/atomic"
)

// LogLevel is the severity passed to LogCallbacks.
type LogLevel int

const (
	LogTrace LogLevel = iota
	LogDebug
	LogInfo
	LogWarning
	LogError
	LogFatal
)

func (l LogLevel) String() string {
	switch l {
	case LogTrace:
		return "trace"
	case LogDebug:
		return "debug"
	case LogInfo:
		return "info"
	case LogWarning:
		return "warning"
	case LogError:
		return "error"
	case LogFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ConnectionStatus is what connection callbacks report.
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connected
)

func (s ConnectionStatus) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// LogCallbacks receives the client's log output. Default: silent.
type LogCallbacks interface {
	Log(level LogLevel, text string)
}

// ConnectionCallbacks is notified about connection changes. Default: no-op.
type ConnectionCallbacks interface {
	OnConnectionStatusChanged(status ConnectionStatus, rc ReasonCode, reason ProtocolReason)
}

// CommandCallbacks receives the completion of subscribe, unsubscribe and publish
// operations, keyed by the token handed out when the operation was started.
// Default: no-op.
type CommandCallbacks interface {
	OnSubscribe(token int, rc ReasonCode, reason ProtocolReason)
	OnUnSubscribe(token int, rc ReasonCode, reason ProtocolReason)
	OnPublish(token int, rc ReasonCode, reason ProtocolReason)
}

// MessageCallbacks receives inbound messages from the dispatch queue goroutine.
// Default: one warning log line per message.
type MessageCallbacks interface {
	OnMqttMessage(msg *Message)
}

// LogFunc adapts a function to LogCallbacks.
type LogFunc func(level LogLevel, text string)

func (f LogFunc) Log(level LogLevel, text string) { f(level, text) }

// MessageFunc adapts a function to MessageCallbacks.
type MessageFunc func(msg *Message)

func (f MessageFunc) OnMqttMessage(msg *Message) { f(msg) }

// Callbacks bundles the four callback slots. A nil slot selects the default.
type Callbacks struct {
	Log        LogCallbacks
	Connection ConnectionCallbacks
	Command    CommandCallbacks
	Message    MessageCallbacks
}

// callbackRegistry holds the active Callbacks. Readers load an immutable,
// fully resolved snapshot; writers build a new one under mu and swap it in.
type callbackRegistry struct {
	mu      sync.Mutex
	current atomic.Pointer[Callbacks]
}

func newCallbackRegistry(cbs Callbacks) *callbackRegistry {
	r := &callbackRegistry{}
	r.current.Store(r.resolve(cbs))
	return r
}

// load returns the current snapshot. All four slots are non-nil.
func (r *callbackRegistry) load() *Callbacks {
	return r.current.Load()
}

func (r *callbackRegistry) set(cbs Callbacks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current.Store(r.resolve(cbs))
}

// update changes selected slots of the current snapshot.
func (r *callbackRegistry) update(apply func(*Callbacks)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := *r.current.Load()
	apply(&next)
	r.current.Store(r.resolve(next))
}

func (r *callbackRegistry) resolve(cbs Callbacks) *Callbacks {
	d := defaultCallbacks{registry: r}
	if cbs.Log == nil {
		cbs.Log = d
	}
	if cbs.Connection == nil {
		cbs.Connection = d
	}
	if cbs.Command == nil {
		cbs.Command = d
	}
	if cbs.Message == nil {
		cbs.Message = d
	}
	return &cbs
}

// defaultCallbacks is the inert behavior used for unset slots.
type defaultCallbacks struct {
	registry *callbackRegistry
}

func (defaultCallbacks) Log(LogLevel, string) {}

func (defaultCallbacks) OnConnectionStatusChanged(ConnectionStatus, ReasonCode, ProtocolReason) {}

func (defaultCallbacks) OnSubscribe(int, ReasonCode, ProtocolReason)   {}
func (defaultCallbacks) OnUnSubscribe(int, ReasonCode, ProtocolReason) {}
func (defaultCallbacks) OnPublish(int, ReasonCode, ProtocolReason)     {}

// NoMessageHandler is logged at warning level for a message that arrives
// while no message callback is installed.
const NoMessageHandler = "Got MQTT message, but no handler installed"

func (d defaultCallbacks) OnMqttMessage(*Message) {
	d.registry.load().Log.Log(LogWarning, NoMessageHandler)
}

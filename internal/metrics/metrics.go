// Package metrics exposes the MQTT client's activity as Prometheus metrics.
package metrics

import (
	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "imqtt"

// Source is the client state sampled at scrape time.
type Source interface {
	QueueLen() int
	QueueDropped() uint64
	Pending() int
}

// Collector owns a registry with the client metrics.
type Collector struct {
	registry *prometheus.Registry

	commands          *prometheus.CounterVec
	connectionChanges *prometheus.CounterVec
	connected         prometheus.Gauge
	messages          *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them, together with the Go
// runtime collectors, on a fresh registry.
func NewCollector(source Source) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_completions_total",
			Help:      "Completed subscribe, unsubscribe and publish operations by outcome",
		}, []string{"kind", "rc"}),
		connectionChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_changes_total",
			Help:      "Connection status changes by status and outcome",
		}, []string{"status", "rc"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the client is connected to the broker",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages delivered to the message callback",
		}, []string{"qos"}),
	}

	c.registry.MustRegister(
		c.commands,
		c.connectionChanges,
		c.connected,
		c.messages,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if source != nil {
		c.registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dispatch_queue_length",
				Help:      "Messages waiting in the dispatch queue",
			}, func() float64 { return float64(source.QueueLen()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_queue_dropped_total",
				Help:      "Messages dropped by the dispatch queue",
			}, func() float64 { return float64(source.QueueDropped()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_operations",
				Help:      "Accepted operations awaiting completion",
			}, func() float64 { return float64(source.Pending()) }),
		)
	}
	return c
}

// Registry returns the registry the metrics live in.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Wrap returns cbs with its connection, command and message callbacks
// decorated to record metrics. The wrapped callbacks still run; with no
// message callback the unhandled message warning goes to cbs.Log.
func (c *Collector) Wrap(cbs mqtt.Callbacks) mqtt.Callbacks {
	return mqtt.Callbacks{
		Log:        cbs.Log,
		Connection: connectionMetrics{c: c, next: cbs.Connection},
		Command:    commandMetrics{c: c, next: cbs.Command},
		Message:    messageMetrics{c: c, next: cbs.Message, log: cbs.Log},
	}
}

type connectionMetrics struct {
	c    *Collector
	next mqtt.ConnectionCallbacks
}

func (m connectionMetrics) OnConnectionStatusChanged(status mqtt.ConnectionStatus, rc mqtt.ReasonCode, reason mqtt.ProtocolReason) {
	m.c.connectionChanges.WithLabelValues(status.String(), rc.String()).Inc()
	if status == mqtt.Connected {
		m.c.connected.Set(1)
	} else {
		m.c.connected.Set(0)
	}
	if m.next != nil {
		m.next.OnConnectionStatusChanged(status, rc, reason)
	}
}

type commandMetrics struct {
	c    *Collector
	next mqtt.CommandCallbacks
}

func (m commandMetrics) OnSubscribe(token int, rc mqtt.ReasonCode, reason mqtt.ProtocolReason) {
	m.c.commands.WithLabelValues("subscribe", rc.String()).Inc()
	if m.next != nil {
		m.next.OnSubscribe(token, rc, reason)
	}
}

func (m commandMetrics) OnUnSubscribe(token int, rc mqtt.ReasonCode, reason mqtt.ProtocolReason) {
	m.c.commands.WithLabelValues("unsubscribe", rc.String()).Inc()
	if m.next != nil {
		m.next.OnUnSubscribe(token, rc, reason)
	}
}

func (m commandMetrics) OnPublish(token int, rc mqtt.ReasonCode, reason mqtt.ProtocolReason) {
	m.c.commands.WithLabelValues("publish", rc.String()).Inc()
	if m.next != nil {
		m.next.OnPublish(token, rc, reason)
	}
}

type messageMetrics struct {
	c    *Collector
	next mqtt.MessageCallbacks
	log  mqtt.LogCallbacks
}

func (m messageMetrics) OnMqttMessage(msg *mqtt.Message) {
	m.c.messages.WithLabelValues(qosLabel(msg.QOS())).Inc()
	switch {
	case m.next != nil:
		m.next.OnMqttMessage(msg)
	case m.log != nil:
		m.log.Log(mqtt.LogWarning, mqtt.NoMessageHandler)
	}
}

func qosLabel(qos mqtt.QOS) string {
	switch qos {
	case mqtt.QOS0:
		return "0"
	case mqtt.QOS1:
		return "1"
	default:
		return "2"
	}
}

package services

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/benmeehan/imqtt/internal/models"
	"github.com/benmeehan/imqtt/internal/utils"
	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/rs/zerolog"
)

// SubscriberService subscribes to a set of topic filters every time the
// client connects and hands inbound messages to a worker pool.
type SubscriberService struct {
	Topics      []string
	QOS         mqtt.QOS
	GetRetained bool
	Workers     int
	MqttClient  MQTTClient
	Logger      zerolog.Logger

	// Handle processes one message on a pool worker. Defaults to logging it.
	Handle func(msg *mqtt.Message)

	mu         sync.Mutex
	running    bool
	pool       *utils.WorkerPool
	subscribed map[string]bool
	pending    map[int][]string // subscribe token -> topics, oldest first
}

// NewSubscriberService initializes a new SubscriberService.
func NewSubscriberService(topics []string, qos mqtt.QOS, getRetained bool, workers int,
	mqttClient MQTTClient, logger zerolog.Logger) *SubscriberService {

	s := &SubscriberService{
		Topics:      topics,
		QOS:         qos,
		GetRetained: getRetained,
		Workers:     workers,
		MqttClient:  mqttClient,
		Logger:      logger,
	}
	s.Handle = s.logMessage
	return s
}

// Start prepares the worker pool and subscribes right away if the client is
// already connected.
func (s *SubscriberService) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.Logger.Warn().Msg("SubscriberService is already running")
		return errors.New("subscriber service is already running")
	}
	if len(s.Topics) == 0 {
		s.mu.Unlock()
		return errors.New("subscriber service needs at least one topic")
	}
	s.running = true
	s.pool = utils.NewWorkerPool(s.Workers, 64, s.Logger)
	s.subscribed = make(map[string]bool)
	s.pending = make(map[int][]string)
	s.mu.Unlock()

	if s.MqttClient.ConnectionStatus() == mqtt.Connected {
		s.subscribeAll()
	}

	s.Logger.Info().Strs("topics", s.Topics).Msg("SubscriberService started successfully")
	return nil
}

// Stop unsubscribes the confirmed topics and drains the worker pool.
func (s *SubscriberService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.Logger.Warn().Msg("SubscriberService is not running")
		return errors.New("subscriber service is not running")
	}
	s.running = false
	topics := make([]string, 0, len(s.subscribed))
	for topic := range s.subscribed {
		topics = append(topics, topic)
	}
	pool := s.pool
	s.mu.Unlock()

	if s.MqttClient.ConnectionStatus() == mqtt.Connected {
		for _, topic := range topics {
			var token int
			if rc := s.MqttClient.UnSubscribeAsync(topic, &token); rc != mqtt.ReasonOK {
				s.Logger.Warn().Str("topic", topic).Str("rc", rc.String()).Msg("Failed to unsubscribe")
			}
		}
	}
	pool.Shutdown()

	s.Logger.Info().Msg("SubscriberService stopped successfully")
	return nil
}

// OnConnectionStatusChanged subscribes again after every successful
// connect. Broker-side subscriptions of a clean session do not survive a
// reconnect.
func (s *SubscriberService) OnConnectionStatusChanged(status mqtt.ConnectionStatus, rc mqtt.ReasonCode, _ mqtt.ProtocolReason) {
	s.mu.Lock()
	running := s.running
	if status != mqtt.Connected {
		s.subscribed = make(map[string]bool)
	}
	s.mu.Unlock()

	if running && status == mqtt.Connected && rc == mqtt.ReasonOK {
		s.subscribeAll()
	}
}

// OnSubscribe records the broker's answer for subscriptions started here.
// Back-ends that hand out token 0 for every QoS 0 subscription complete them
// in order.
func (s *SubscriberService) OnSubscribe(token int, rc mqtt.ReasonCode, reason mqtt.ProtocolReason) {
	s.mu.Lock()
	var topic string
	queue := s.pending[token]
	ok := len(queue) > 0
	if ok {
		topic = queue[0]
		if len(queue) == 1 {
			delete(s.pending, token)
		} else {
			s.pending[token] = queue[1:]
		}
		if rc == mqtt.ReasonOK {
			s.subscribed[topic] = true
		}
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	if rc != mqtt.ReasonOK {
		s.Logger.Error().Str("topic", topic).Str("rc", rc.String()).Str("reason", reason.String()).Msg("Subscription refused")
		return
	}
	s.Logger.Info().Str("topic", topic).Msg("Subscribed")
}

// OnMqttMessage queues msg for a pool worker.
func (s *SubscriberService) OnMqttMessage(msg *mqtt.Message) {
	s.mu.Lock()
	pool := s.pool
	running := s.running
	s.mu.Unlock()

	if !running || !pool.Submit(func() { s.Handle(msg) }) {
		s.Logger.Debug().Str("topic", msg.Topic()).Msg("SubscriberService stopped, dropping message")
	}
}

// Subscribed reports the topic filters the broker has confirmed.
func (s *SubscriberService) Subscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	topics := make([]string, 0, len(s.subscribed))
	for _, topic := range s.Topics {
		if s.subscribed[topic] {
			topics = append(topics, topic)
		}
	}
	return topics
}

func (s *SubscriberService) subscribeAll() {
	for _, topic := range s.Topics {
		var token int
		// The completion can arrive before the token is recorded, so hold the
		// lock across the call.
		s.mu.Lock()
		rc := s.MqttClient.SubscribeAsync(topic, s.QOS, &token, s.GetRetained)
		if rc == mqtt.ReasonOK {
			s.pending[token] = append(s.pending[token], topic)
		}
		s.mu.Unlock()

		if rc != mqtt.ReasonOK {
			s.Logger.Warn().Str("topic", topic).Str("rc", rc.String()).Msg("Failed to subscribe")
		}
	}
}

func (s *SubscriberService) logMessage(msg *mqtt.Message) {
	event := s.Logger.Info().Str("topic", msg.Topic()).Int("qos", int(msg.QOS())).Bool("retained", msg.Retained())

	if msg.ContentType == "application/json" {
		var sample models.Telemetry
		if err := json.Unmarshal(msg.Payload(), &sample); err == nil && sample.ClientID != "" {
			event.Str("client_id", sample.ClientID).Uint64("sequence", sample.Sequence).Msg("Received telemetry sample")
			return
		}
	}
	event.Int("bytes", len(msg.Payload())).Msg("Received message")
}

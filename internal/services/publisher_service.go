package services

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benmeehan/imqtt/internal/models"
	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PublisherService publishes a telemetry sample at a fixed interval while
// the client is connected.
type PublisherService struct {
	PubTopic   string
	Interval   time.Duration
	QOS        mqtt.QOS
	Retain     bool
	ClientID   string
	MqttClient MQTTClient
	Logger     zerolog.Logger

	sequence atomic.Uint64

	// mu is held across PublishAsync so a completion racing the call
	// finds its token.
	mu      sync.Mutex
	pending map[int]uint64 // token -> sequence

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPublisherService initializes a new PublisherService.
func NewPublisherService(pubTopic string, interval time.Duration, qos mqtt.QOS, retain bool,
	clientID string, mqttClient MQTTClient, logger zerolog.Logger) *PublisherService {

	return &PublisherService{
		PubTopic:   pubTopic,
		Interval:   interval,
		QOS:        qos,
		Retain:     retain,
		ClientID:   clientID,
		MqttClient: mqttClient,
		Logger:     logger,
		pending:    make(map[int]uint64),
	}
}

// Start launches the publish loop in a separate goroutine.
func (p *PublisherService) Start() error {
	if p.ctx != nil {
		p.Logger.Warn().Msg("PublisherService is already running")
		return errors.New("publisher service is already running")
	}
	if p.Interval <= 0 {
		return errors.New("publisher interval must be positive")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runPublishLoop()
	}()

	p.Logger.Info().Str("topic", p.PubTopic).Dur("interval", p.Interval).Msg("PublisherService started successfully")
	return nil
}

// Stop gracefully stops the publisher service.
func (p *PublisherService) Stop() error {
	if p.ctx == nil {
		p.Logger.Warn().Msg("PublisherService is not running")
		return errors.New("publisher service is not running")
	}

	p.cancel()
	p.wg.Wait()

	p.ctx = nil
	p.cancel = nil

	p.Logger.Info().Msg("PublisherService stopped successfully")
	return nil
}

// OnPublish logs the acknowledgement of samples sent by this service.
func (p *PublisherService) OnPublish(token int, rc mqtt.ReasonCode, reason mqtt.ProtocolReason) {
	p.mu.Lock()
	seq, ok := p.pending[token]
	delete(p.pending, token)
	p.mu.Unlock()
	if !ok {
		return
	}
	if rc != mqtt.ReasonOK {
		p.Logger.Error().Uint64("sequence", seq).Str("rc", rc.String()).Str("reason", reason.String()).
			Msg("Telemetry sample was not delivered")
		return
	}
	p.Logger.Debug().Uint64("sequence", seq).Int("token", token).Msg("Telemetry sample delivered")
}

// Pending returns how many QoS 1 and 2 samples await their acknowledgement.
func (p *PublisherService) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *PublisherService) runPublishLoop() {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.publishSample()

		case <-p.ctx.Done():
			p.Logger.Info().Msg("PublisherService stopping gracefully")
			return
		}
	}
}

func (p *PublisherService) publishSample() {
	if p.MqttClient.ConnectionStatus() != mqtt.Connected {
		p.Logger.Debug().Msg("Not connected, skipping telemetry sample")
		return
	}

	sample := models.Telemetry{
		ClientID:   p.ClientID,
		Sequence:   p.sequence.Add(1),
		Timestamp:  time.Now().UTC(),
		Goroutines: runtime.NumGoroutine(),
		QueueDepth: p.MqttClient.QueueLen(),
	}
	payload, err := json.Marshal(sample)
	if err != nil {
		p.Logger.Error().Err(err).Msg("Failed to serialize telemetry sample")
		return
	}

	msg := mqtt.NewMessage(p.PubTopic, payload, p.QOS, p.Retain)
	msg.ContentType = "application/json"
	msg.PayloadFormat = mqtt.FormatUTF8
	correlation := uuid.New()
	msg.CorrelationData = correlation[:]
	msg.AddUserProperty("client_id", p.ClientID)

	var token int
	p.mu.Lock()
	rc := p.MqttClient.PublishAsync(msg, &token)
	if rc == mqtt.ReasonOK && p.QOS != mqtt.QOS0 {
		p.pending[token] = sample.Sequence
	}
	p.mu.Unlock()
	if rc != mqtt.ReasonOK {
		p.Logger.Warn().Str("rc", rc.String()).Uint64("sequence", sample.Sequence).Msg("Failed to publish telemetry sample")
		return
	}
	p.Logger.Debug().Uint64("sequence", sample.Sequence).Int("token", token).Msg("Telemetry sample published")
}

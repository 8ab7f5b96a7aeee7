package service_registry

import (
	"errors"
	"fmt"

	"github.com/benmeehan/imqtt/internal/services"
	"github.com/benmeehan/imqtt/internal/utils"
	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/rs/zerolog"
)

// Service is the interface for all plug-in services
type Service interface {
	Start() error
	Stop() error
}

// Services may implement any of these to receive client events.
type (
	connectionObserver interface {
		OnConnectionStatusChanged(status mqtt.ConnectionStatus, rc mqtt.ReasonCode, reason mqtt.ProtocolReason)
	}
	subscribeObserver interface {
		OnSubscribe(token int, rc mqtt.ReasonCode, reason mqtt.ProtocolReason)
	}
	unsubscribeObserver interface {
		OnUnSubscribe(token int, rc mqtt.ReasonCode, reason mqtt.ProtocolReason)
	}
	publishObserver interface {
		OnPublish(token int, rc mqtt.ReasonCode, reason mqtt.ProtocolReason)
	}
	messageObserver interface {
		OnMqttMessage(msg *mqtt.Message)
	}
)

// ServiceRegistry manages the lifecycle of various services in the system and
// fans the MQTT client's callbacks out to them.
type ServiceRegistry struct {
	services    map[string]Service // Stores registered services
	serviceKeys []string           // Maintains order of service registration
	mqttClient  services.MQTTClient
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(mqttClient services.MQTTClient, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]Service),
		mqttClient: mqttClient,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config) error {
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (Service, error)
	}{
		{
			name:    "subscriber",
			enabled: config.Services.Subscriber.Enabled,
			constructor: func() (Service, error) {
				qos, err := mqtt.QOSFromInt(config.Services.Subscriber.QOS)
				if err != nil {
					return nil, err
				}
				return services.NewSubscriberService(
					config.Services.Subscriber.Topics,
					qos,
					config.Services.Subscriber.GetRetained,
					config.Services.Subscriber.Workers,
					sr.mqttClient,
					sr.Logger.With().Str("service", "subscriber").Logger(),
				), nil
			},
		},
		{
			name:    "publisher",
			enabled: config.Services.Publisher.Enabled,
			constructor: func() (Service, error) {
				qos, err := mqtt.QOSFromInt(config.Services.Publisher.QOS)
				if err != nil {
					return nil, err
				}
				return services.NewPublisherService(
					config.Services.Publisher.Topic,
					config.Services.Publisher.Interval,
					qos,
					config.Services.Publisher.Retain,
					config.MQTT.ClientID,
					sr.mqttClient,
					sr.Logger.With().Str("service", "publisher").Logger(),
				), nil
			},
		},
	}

	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return fmt.Errorf("failed to create %s service: %w", svc.name, err)
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}

// Callbacks returns a callback set that forwards client events to every
// registered service that observes them. Register all services first.
func (sr *ServiceRegistry) Callbacks(log mqtt.LogCallbacks) mqtt.Callbacks {
	return mqtt.Callbacks{
		Log:        log,
		Connection: sr,
		Command:    sr,
		Message:    sr,
	}
}

func (sr *ServiceRegistry) OnConnectionStatusChanged(status mqtt.ConnectionStatus, rc mqtt.ReasonCode, reason mqtt.ProtocolReason) {
	sr.Logger.Info().Str("status", status.String()).Str("rc", rc.String()).Str("reason", reason.String()).Msg("MQTT connection status changed")
	for _, name := range sr.serviceKeys {
		if o, ok := sr.services[name].(connectionObserver); ok {
			o.OnConnectionStatusChanged(status, rc, reason)
		}
	}
}

func (sr *ServiceRegistry) OnSubscribe(token int, rc mqtt.ReasonCode, reason mqtt.ProtocolReason) {
	for _, name := range sr.serviceKeys {
		if o, ok := sr.services[name].(subscribeObserver); ok {
			o.OnSubscribe(token, rc, reason)
		}
	}
}

func (sr *ServiceRegistry) OnUnSubscribe(token int, rc mqtt.ReasonCode, reason mqtt.ProtocolReason) {
	for _, name := range sr.serviceKeys {
		if o, ok := sr.services[name].(unsubscribeObserver); ok {
			o.OnUnSubscribe(token, rc, reason)
		}
	}
}

func (sr *ServiceRegistry) OnPublish(token int, rc mqtt.ReasonCode, reason mqtt.ProtocolReason) {
	for _, name := range sr.serviceKeys {
		if o, ok := sr.services[name].(publishObserver); ok {
			o.OnPublish(token, rc, reason)
		}
	}
}

// OnMqttMessage runs on the client's dispatch goroutine. Observers that block
// hold up the dispatch queue.
func (sr *ServiceRegistry) OnMqttMessage(msg *mqtt.Message) {
	delivered := false
	for _, name := range sr.serviceKeys {
		if o, ok := sr.services[name].(messageObserver); ok {
			o.OnMqttMessage(msg)
			delivered = true
		}
	}
	if !delivered {
		sr.Logger.Warn().Str("topic", msg.Topic()).Msg("No service handles inbound MQTT messages")
	}
}

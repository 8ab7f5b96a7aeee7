package services

import "github.com/benmeehan/imqtt/pkg/mqtt"

// MQTTClient is the part of *mqtt.Client the sample services use.
type MQTTClient interface {
	SubscribeAsync(topic string, qos mqtt.QOS, token *int, getRetained bool) mqtt.ReasonCode
	UnSubscribeAsync(topic string, token *int) mqtt.ReasonCode
	PublishAsync(msg *mqtt.Message, token *int) mqtt.ReasonCode
	ConnectionStatus() mqtt.ConnectionStatus
	QueueLen() int
}

package pahov5

import (
	"errors"
	"fmt"
	"strings"

	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/eclipse/paho.golang/paho"
	paholog "github.com/eclipse/paho.golang/paho/log"
)

const modulePath = "github.com/eclipse/paho.golang"

var library = mqtt.NewLibrary("paho.golang", modulePath, nil, nil)

// errorLogSetter is implemented by *paho.Client.
type errorLogSetter interface {
	SetErrorLogger(l paholog.Logger)
}

// eventLogger writes paho's error output to the log event of one transport.
type eventLogger struct {
	events mqtt.TransportEvents
}

var _ paholog.Logger = eventLogger{}

func (l eventLogger) Println(v ...interface{}) {
	l.events.OnLog(mqtt.LogError, "paho: "+strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l eventLogger) Printf(format string, v ...interface{}) {
	l.events.OnLog(mqtt.LogError, "paho: "+strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// connectError maps a failed connect onto the facade errors. Authentication
// and authorization CONNACK codes become ErrNotAuthorized.
func connectError(connack *paho.Connack, err error) (mqtt.ProtocolReason, error) {
	if connack == nil {
		reason := mqtt.V5Reason(mqtt.Mqtt5UnspecifiedError)
		return reason, wrapError(err, reason)
	}

	code := mqtt.Mqtt5ReasonCode(connack.ReasonCode)
	reason := mqtt.V5Reason(code)
	switch code {
	case mqtt.Mqtt5BadUserNameOrPassword, mqtt.Mqtt5NotAuthorized, mqtt.Mqtt5Banned, mqtt.Mqtt5BadAuthenticationMethod:
		return reason, fmt.Errorf("%w: %v", mqtt.ErrNotAuthorized, err)
	}
	return reason, wrapError(err, reason)
}

// wrapError attaches the facade sentinel that matches a paho outcome.
func wrapError(err error, reason mqtt.ProtocolReason) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mqtt.ErrNotConnected), errors.Is(err, mqtt.ErrTLS), errors.Is(err, mqtt.ErrConnectionLost):
		return err
	case errors.Is(err, paho.ErrConnectionLost), errors.Is(err, paho.ErrNetworkErrorAfterStored):
		return fmt.Errorf("%w: %v", mqtt.ErrConnectionLost, err)
	case mqtt.Mqtt5ReasonCode(reason.Code) == mqtt.Mqtt5NotAuthorized:
		return fmt.Errorf("%w: %v", mqtt.ErrNotAuthorized, err)
	default:
		return err
	}
}

// refused turns an acknowledgement carrying a failure reason into an error.
func refused(err error, reason mqtt.ProtocolReason, what string) error {
	if err != nil || !mqtt.Mqtt5ReasonCode(reason.Code).IsError() {
		return err
	}
	return fmt.Errorf("%s refused by broker: %s", what, reason)
}

func toPublish(msg *mqtt.Message) *paho.Publish {
	p := &paho.Publish{
		Topic:   msg.Topic(),
		QoS:     byte(msg.QOS()),
		Retain:  msg.Retained(),
		Payload: msg.Payload(),
	}
	if !msg.HasProperties() {
		return p
	}

	props := &paho.PublishProperties{
		CorrelationData: msg.CorrelationData,
		ContentType:     msg.ContentType,
		ResponseTopic:   msg.ResponseTopic,
	}
	if msg.PayloadFormat != mqtt.FormatUnspecified {
		format := byte(msg.PayloadFormat)
		props.PayloadFormat = &format
	}
	for _, up := range msg.UserProperties {
		props.User = append(props.User, paho.UserProperty{Key: up.Key, Value: up.Value})
	}
	p.Properties = props
	return p
}

func fromPublish(p *paho.Publish) *mqtt.Message {
	msg := mqtt.NewMessage(p.Topic, p.Payload, mqtt.QOS(p.QoS), p.Retain)
	msg.MessageID = int(p.PacketID)

	if props := p.Properties; props != nil {
		for _, up := range props.User {
			msg.AddUserProperty(up.Key, up.Value)
		}
		msg.CorrelationData = props.CorrelationData
		msg.ResponseTopic = props.ResponseTopic
		msg.ContentType = props.ContentType
		if props.PayloadFormat != nil {
			msg.PayloadFormat = mqtt.FormatIndicator(*props.PayloadFormat)
		}
	}
	return msg
}

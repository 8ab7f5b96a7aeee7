package mqtt

import "fmt"

// ReasonCode is the library-level outcome of an operation, independent of the back-end.
type ReasonCode int

const (
	ReasonOK ReasonCode = iota
	ReasonGeneralError
	ReasonNoConnection
	ReasonTLSError
	ReasonNotAllowed
)

// CodeRepr is the short and long text of a reason code.
type CodeRepr struct {
	Short string
	Long  string
}

var reasonCodeRepr = map[ReasonCode]CodeRepr{
	ReasonOK:           {"OKAY", "The operation was successful"},
	ReasonGeneralError: {"ERROR_GENERAL", "A general error occurred"},
	ReasonNoConnection: {"ERROR_NO_CONNECTION", "No connection to the broker"},
	ReasonTLSError:     {"ERROR_TLS", "A TLS error occurred"},
	ReasonNotAllowed:   {"NOT_ALLOWED", "The broker refused the connection"},
}

// Repr returns the text pair for rc.
func (rc ReasonCode) Repr() CodeRepr {
	if repr, ok := reasonCodeRepr[rc]; ok {
		return repr
	}
	return CodeRepr{"UNKNOWN", "The provided reason code is unknown"}
}

func (rc ReasonCode) String() string { return rc.Repr().Short }

// MqttReasonCode is an MQTT 3.1.1 CONNACK return code, plus the SUBACK failure value.
type MqttReasonCode byte

const (
	MqttAccepted                    MqttReasonCode = 0x00
	MqttUnacceptableProtocolVersion MqttReasonCode = 0x01
	MqttIdentifierRejected          MqttReasonCode = 0x02
	MqttServerUnavailable           MqttReasonCode = 0x03
	MqttBadUsernameOrPassword       MqttReasonCode = 0x04
	MqttNotAuthorized               MqttReasonCode = 0x05
	MqttSubackFailure               MqttReasonCode = 0x80
)

var mqttReasonCodeRepr = map[MqttReasonCode]CodeRepr{
	MqttAccepted:                    {"ACCEPTED", "Connection accepted"},
	MqttUnacceptableProtocolVersion: {"UNACCEPTABLE_PROTOCOL_VERSION", "Unacceptable protocol version"},
	MqttIdentifierRejected:          {"IDENTIFIER_REJECTED", "Identifier rejected"},
	MqttServerUnavailable:           {"SERVER_UNAVAILABLE", "Server unavailable"},
	MqttBadUsernameOrPassword:       {"BAD_USERNAME_OR_PASSWORD", "Bad user name or password"},
	MqttNotAuthorized:               {"NOT_AUTHORIZED", "Not authorized"},
	MqttSubackFailure:               {"SUBACK_FAILURE", "Subscription refused by broker"},
}

// Repr returns the text pair for rc.
func (rc MqttReasonCode) Repr() CodeRepr {
	if repr, ok := mqttReasonCodeRepr[rc]; ok {
		return repr
	}
	return CodeRepr{"UNKNOWN", "Unknown MQTT reason code"}
}

func (rc MqttReasonCode) String() string { return rc.Repr().Short }

// Mqtt5ReasonCode is an MQTT 5 reason code as carried by CONNACK, PUBACK, SUBACK,
// UNSUBACK, DISCONNECT and AUTH packets.
type Mqtt5ReasonCode byte

const (
	Mqtt5Success                             Mqtt5ReasonCode = 0x00 // also GRANTED_QOS_0 / NORMAL_DISCONNECTION
	Mqtt5GrantedQoS1                         Mqtt5ReasonCode = 0x01
	Mqtt5GrantedQoS2                         Mqtt5ReasonCode = 0x02
	Mqtt5DisconnectWithWillMessage           Mqtt5ReasonCode = 0x04
	Mqtt5NoMatchingSubscribers               Mqtt5ReasonCode = 0x10
	Mqtt5NoSubscriptionExisted               Mqtt5ReasonCode = 0x11
	Mqtt5ContinueAuthentication              Mqtt5ReasonCode = 0x18
	Mqtt5ReAuthenticate                      Mqtt5ReasonCode = 0x19
	Mqtt5UnspecifiedError                    Mqtt5ReasonCode = 0x80
	Mqtt5MalformedPacket                     Mqtt5ReasonCode = 0x81
	Mqtt5ProtocolError                       Mqtt5ReasonCode = 0x82
	Mqtt5ImplementationSpecificError         Mqtt5ReasonCode = 0x83
	Mqtt5UnsupportedProtocolVersion          Mqtt5ReasonCode = 0x84
	Mqtt5ClientIdentifierNotValid            Mqtt5ReasonCode = 0x85
	Mqtt5BadUserNameOrPassword               Mqtt5ReasonCode = 0x86
	Mqtt5NotAuthorized                       Mqtt5ReasonCode = 0x87
	Mqtt5ServerUnavailable                   Mqtt5ReasonCode = 0x88
	Mqtt5ServerBusy                          Mqtt5ReasonCode = 0x89
	Mqtt5Banned                              Mqtt5ReasonCode = 0x8A
	Mqtt5ServerShuttingDown                  Mqtt5ReasonCode = 0x8B
	Mqtt5BadAuthenticationMethod             Mqtt5ReasonCode = 0x8C
	Mqtt5KeepAliveTimeout                    Mqtt5ReasonCode = 0x8D
	Mqtt5SessionTakenOver                    Mqtt5ReasonCode = 0x8E
	Mqtt5TopicFilterInvalid                  Mqtt5ReasonCode = 0x8F
	Mqtt5TopicNameInvalid                    Mqtt5ReasonCode = 0x90
	Mqtt5PacketIdentifierInUse               Mqtt5ReasonCode = 0x91
	Mqtt5PacketIdentifierNotFound            Mqtt5ReasonCode = 0x92
	Mqtt5ReceiveMaximumExceeded              Mqtt5ReasonCode = 0x93
	Mqtt5TopicAliasInvalid                   Mqtt5ReasonCode = 0x94
	Mqtt5PacketTooLarge                      Mqtt5ReasonCode = 0x95
	Mqtt5MessageRateTooHigh                  Mqtt5ReasonCode = 0x96
	Mqtt5QuotaExceeded                       Mqtt5ReasonCode = 0x97
	Mqtt5AdministrativeAction                Mqtt5ReasonCode = 0x98
	Mqtt5PayloadFormatInvalid                Mqtt5ReasonCode = 0x99
	Mqtt5RetainNotSupported                  Mqtt5ReasonCode = 0x9A
	Mqtt5QoSNotSupported                     Mqtt5ReasonCode = 0x9B
	Mqtt5UseAnotherServer                    Mqtt5ReasonCode = 0x9C
	Mqtt5ServerMoved                         Mqtt5ReasonCode = 0x9D
	Mqtt5SharedSubscriptionsNotSupported     Mqtt5ReasonCode = 0x9E
	Mqtt5ConnectionRateExceeded              Mqtt5ReasonCode = 0x9F
	Mqtt5MaximumConnectTime                  Mqtt5ReasonCode = 0xA0
	Mqtt5SubscriptionIdentifiersNotSupported Mqtt5ReasonCode = 0xA1
	Mqtt5WildcardSubscriptionsNotSupported   Mqtt5ReasonCode = 0xA2
)

var mqtt5ReasonCodeRepr = map[Mqtt5ReasonCode]CodeRepr{
	Mqtt5Success:                             {"SUCCESS", "Success"},
	Mqtt5GrantedQoS1:                         {"GRANTED_QOS_1", "Granted QoS 1"},
	Mqtt5GrantedQoS2:                         {"GRANTED_QOS_2", "Granted QoS 2"},
	Mqtt5DisconnectWithWillMessage:           {"DISCONNECT_WITH_WILL_MESSAGE", "Disconnect with Will Message"},
	Mqtt5NoMatchingSubscribers:               {"NO_MATCHING_SUBSCRIBERS", "No matching subscribers"},
	Mqtt5NoSubscriptionExisted:               {"NO_SUBSCRIPTION_EXISTS", "No subscription existed"},
	Mqtt5ContinueAuthentication:              {"CONTINUE_AUTHENTICATION", "Continue authentication"},
	Mqtt5ReAuthenticate:                      {"RE_AUTHENTICATE", "Re-authenticate"},
	Mqtt5UnspecifiedError:                    {"UNSPECIFIED_ERROR", "Unspecified error"},
	Mqtt5MalformedPacket:                     {"MALFORMED_PACKET", "Malformed Packet"},
	Mqtt5ProtocolError:                       {"PROTOCOL_ERROR", "Protocol Error"},
	Mqtt5ImplementationSpecificError:         {"IMPLEMENTATION_SPECIFIC_ERROR", "Implementation specific error"},
	Mqtt5UnsupportedProtocolVersion:          {"UNSUPPORTED_PROTOCOL_VERSION", "Unsupported Protocol Version"},
	Mqtt5ClientIdentifierNotValid:            {"CLIENT_IDENTIFIER_NOT_VALID", "Client Identifier not valid"},
	Mqtt5BadUserNameOrPassword:               {"BAD_USER_NAME_OR_PASSWORD", "Bad User Name or Password"},
	Mqtt5NotAuthorized:                       {"NOT_AUTHORIZED", "Not authorized"},
	Mqtt5ServerUnavailable:                   {"SERVER_UNAVAILABLE", "Server unavailable"},
	Mqtt5ServerBusy:                          {"SERVER_BUSY", "Server busy"},
	Mqtt5Banned:                              {"BANNED", "Banned"},
	Mqtt5ServerShuttingDown:                  {"SERVER_SHUTTING_DOWN", "Server shutting down"},
	Mqtt5BadAuthenticationMethod:             {"BAD_AUTHENTICATION_METHOD", "Bad authentication method"},
	Mqtt5KeepAliveTimeout:                    {"KEEP_ALIVE_TIMEOUT", "Keep Alive timeout"},
	Mqtt5SessionTakenOver:                    {"SESSION_TAKEN_OVER", "Session taken over"},
	Mqtt5TopicFilterInvalid:                  {"TOPIC_FILTER_INVALID", "Topic Filter invalid"},
	Mqtt5TopicNameInvalid:                    {"TOPIC_NAME_INVALID", "Topic Name invalid"},
	Mqtt5PacketIdentifierInUse:               {"PACKET_IDENTIFIER_IN_USE", "Packet Identifier in use"},
	Mqtt5PacketIdentifierNotFound:            {"PACKET_IDENTIFIER_NOT_FOUND", "Packet Identifier not found"},
	Mqtt5ReceiveMaximumExceeded:              {"RECEIVE_MAXIMUM_EXCEEDED", "Receive Maximum exceeded"},
	Mqtt5TopicAliasInvalid:                   {"TOPIC_ALIAS_INVALID", "Topic Alias invalid"},
	Mqtt5PacketTooLarge:                      {"PACKET_TOO_LARGE", "Packet too large"},
	Mqtt5MessageRateTooHigh:                  {"MESSAGE_RATE_TOO_HIGH", "Message rate too high"},
	Mqtt5QuotaExceeded:                       {"QUOTA_EXCEEDED", "Quota exceeded"},
	Mqtt5AdministrativeAction:                {"ADMINISTRATIVE_ACTION", "Administrative action"},
	Mqtt5PayloadFormatInvalid:                {"PAYLOAD_FORMAT_INVALID", "Payload format invalid"},
	Mqtt5RetainNotSupported:                  {"RETAIN_NOT_SUPPORTED", "Retain not supported"},
	Mqtt5QoSNotSupported:                     {"QOS_NOT_SUPPORTED", "QoS not supported"},
	Mqtt5UseAnotherServer:                    {"USE_ANOTHER_SERVER", "Use another server"},
	Mqtt5ServerMoved:                         {"SERVER_MOVED", "Server moved"},
	Mqtt5SharedSubscriptionsNotSupported:     {"SHARED_SUBSCRIPTIONS_NOT_SUPPORTED", "Shared Subscriptions not supported"},
	Mqtt5ConnectionRateExceeded:              {"CONNECTION_RATE_EXCEEDED", "Connection rate exceeded"},
	Mqtt5MaximumConnectTime:                  {"MAXIMUM_CONNECT_TIME", "Maximum connect time"},
	Mqtt5SubscriptionIdentifiersNotSupported: {"SUBSCRIPTION_IDENTIFIERS_NOT_SUPPORTED", "Subscription Identifiers not supported"},
	Mqtt5WildcardSubscriptionsNotSupported:   {"WILDCARD_SUBSCRIPTIONS_NOT_SUPPORTED", "Wildcard Subscriptions not supported"},
}

// Repr returns the text pair for rc.
func (rc Mqtt5ReasonCode) Repr() CodeRepr {
	if repr, ok := mqtt5ReasonCodeRepr[rc]; ok {
		return repr
	}
	return CodeRepr{"UNKNOWN", "Unknown MQTT5 reason code"}
}

func (rc Mqtt5ReasonCode) String() string { return rc.Repr().Short }

// IsError reports whether rc is in the failure range (0x80 and above).
func (rc Mqtt5ReasonCode) IsError() bool { return rc >= 0x80 }

// ProtocolVersion identifies which code space a ProtocolReason belongs to.
type ProtocolVersion byte

const (
	ProtocolV311 ProtocolVersion = 4
	ProtocolV5   ProtocolVersion = 5
)

// ProtocolReason is the broker-side reason code, kept verbatim next to the
// library-level ReasonCode.
type ProtocolReason struct {
	Version ProtocolVersion
	Code    byte
}

// V5Reason builds a ProtocolReason in the MQTT 5 code space.
func V5Reason(code Mqtt5ReasonCode) ProtocolReason {
	return ProtocolReason{Version: ProtocolV5, Code: byte(code)}
}

// V311Reason builds a ProtocolReason in the MQTT 3.1.1 code space.
func V311Reason(code byte) ProtocolReason {
	return ProtocolReason{Version: ProtocolV311, Code: code}
}

// Repr resolves the text pair in the reason's own code space.
func (p ProtocolReason) Repr() CodeRepr {
	if p.Version == ProtocolV5 {
		return Mqtt5ReasonCode(p.Code).Repr()
	}
	return MqttReasonCode(p.Code).Repr()
}

func (p ProtocolReason) String() string {
	return fmt.Sprintf("%s (0x%02X)", p.Repr().Short, p.Code)
}

package utils

import (
	"fmt"
	"time"

	"github.com/benmeehan/imqtt/pkg/file"
	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/google/uuid"
)

// Config represents the structure of the configuration file.
type Config struct {
	MQTT struct {
		Backend        string          `yaml:"backend"`          // paho-v3 or paho-v5
		Host           string          `yaml:"host"`             // Broker host name or address
		Port           int             `yaml:"port"`             // Broker port
		ClientID       string          `yaml:"client_id"`        // MQTT client ID
		UniqueClientID bool            `yaml:"unique_client_id"` // Append a UUID to the client ID
		Username       string          `yaml:"username"`
		Password       string          `yaml:"password"`
		CleanSession   bool            `yaml:"clean_session"`
		KeepAlive      time.Duration   `yaml:"keep_alive"`
		AllowLocal     bool            `yaml:"allow_local_topics"` // Receive own publications
		TLS            mqtt.TLSOptions `yaml:"tls"`

		Reconnect struct {
			Min         time.Duration `yaml:"min"`         // Reconnect floor
			MinLower    time.Duration `yaml:"min_lower"`   // Lower bound of the jitter added to min
			MinUpper    time.Duration `yaml:"min_upper"`   // Upper bound of the jitter added to min
			Max         time.Duration `yaml:"max"`         // Reconnect ceiling
			Auto        bool          `yaml:"auto"`        // Reconnect after connection loss
			Exponential bool          `yaml:"exponential"` // Double the delay per failed attempt
		} `yaml:"reconnect"`

		Queue struct {
			MaxMessages int    `yaml:"max_messages"` // 0 means unbounded
			Overflow    string `yaml:"overflow"`     // block or drop_oldest
		} `yaml:"queue"`
	} `yaml:"mqtt"`

	Services struct {
		Subscriber struct {
			Enabled     bool     `yaml:"enabled"`      // Enable/disable the subscriber service
			Topics      []string `yaml:"topics"`       // Topic filters to subscribe to
			QOS         int      `yaml:"qos"`          // MQTT QoS level for the subscriptions
			GetRetained bool     `yaml:"get_retained"` // Receive retained messages on subscribe
			Workers     int      `yaml:"workers"`      // Message handler goroutines
		} `yaml:"subscriber"`

		Publisher struct {
			Enabled  bool          `yaml:"enabled"`  // Enable/disable the publisher service
			Topic    string        `yaml:"topic"`    // MQTT topic for telemetry samples
			Interval time.Duration `yaml:"interval"` // Interval between samples
			QOS      int           `yaml:"qos"`      // MQTT QoS level for telemetry samples
			Retain   bool          `yaml:"retain"`
		} `yaml:"publisher"`
	} `yaml:"services"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"` // Listen address of the /metrics endpoint
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level"`  // trace, debug, info, warn, error
		Format string `yaml:"format"` // console or json
	} `yaml:"log"`

	DisconnectTimeout time.Duration `yaml:"disconnect_timeout"`
}

// DefaultConfig returns the configuration used for missing keys.
func DefaultConfig() *Config {
	defaults := mqtt.DefaultParameters()

	var config Config
	config.MQTT.Backend = "paho-v5"
	config.MQTT.Host = defaults.Host
	config.MQTT.Port = defaults.Port
	config.MQTT.ClientID = defaults.ClientID
	config.MQTT.CleanSession = defaults.CleanSession
	config.MQTT.KeepAlive = defaults.KeepAlive
	config.MQTT.Reconnect.Min = defaults.ReconnectDelayMin
	config.MQTT.Reconnect.Max = defaults.ReconnectDelayMax
	config.MQTT.Reconnect.Auto = defaults.AutoReconnect
	config.MQTT.Queue.Overflow = "block"

	config.Services.Subscriber.Enabled = true
	config.Services.Subscriber.Topics = []string{"imqtt/sample/#"}
	config.Services.Subscriber.QOS = 1
	config.Services.Subscriber.Workers = 1

	config.Services.Publisher.Enabled = true
	config.Services.Publisher.Topic = "imqtt/sample/telemetry"
	config.Services.Publisher.Interval = 5 * time.Second
	config.Services.Publisher.QOS = 1

	config.Metrics.Address = ":9102"
	config.Log.Level = "info"
	config.Log.Format = "console"
	config.DisconnectTimeout = 5 * time.Second
	return &config
}

// LoadConfig loads the YAML configuration from the specified file on top of
// DefaultConfig.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()
	if err := fileClient.ReadYamlFile(filename, config); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", filename, err)
	}
	if config.MQTT.UniqueClientID {
		config.MQTT.ClientID = config.MQTT.ClientID + "-" + uuid.New().String()
	}
	return config, nil
}

// Parameters converts the MQTT section into client parameters.
func (c *Config) Parameters() (mqtt.InitializeParameters, error) {
	overflow, err := parseOverflow(c.MQTT.Queue.Overflow)
	if err != nil {
		return mqtt.InitializeParameters{}, err
	}

	params := mqtt.InitializeParameters{
		Host:                   c.MQTT.Host,
		Port:                   c.MQTT.Port,
		ClientID:               c.MQTT.ClientID,
		Username:               c.MQTT.Username,
		Password:               c.MQTT.Password,
		CleanSession:           c.MQTT.CleanSession,
		KeepAlive:              c.MQTT.KeepAlive,
		ReconnectDelayMin:      c.MQTT.Reconnect.Min,
		ReconnectDelayMinLower: c.MQTT.Reconnect.MinLower,
		ReconnectDelayMinUpper: c.MQTT.Reconnect.MinUpper,
		ReconnectDelayMax:      c.MQTT.Reconnect.Max,
		AllowLocalTopics:       c.MQTT.AllowLocal,
		AutoReconnect:          c.MQTT.Reconnect.Auto,
		ExponentialBackoff:     c.MQTT.Reconnect.Exponential,
		TLS:                    c.MQTT.TLS,
		Queue: mqtt.QueueOptions{
			MaxMessages: c.MQTT.Queue.MaxMessages,
			Overflow:    overflow,
		},
	}
	if err := params.Validate(); err != nil {
		return mqtt.InitializeParameters{}, err
	}
	return params, nil
}

func parseOverflow(s string) (mqtt.OverflowPolicy, error) {
	switch s {
	case "", "block":
		return mqtt.OverflowBlock, nil
	case "drop_oldest":
		return mqtt.OverflowDropOldest, nil
	default:
		return 0, fmt.Errorf("%w: unknown queue overflow policy %q", mqtt.ErrInvalidConfig, s)
	}
}

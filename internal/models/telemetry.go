package models

import "time"

// Telemetry is the sample published by the publisher service.
type Telemetry struct {
	ClientID   string    `json:"client_id"`
	Sequence   uint64    `json:"sequence"`
	Timestamp  time.Time `json:"timestamp"`
	Goroutines int       `json:"goroutines"`
	QueueDepth int       `json:"queue_depth"`
}

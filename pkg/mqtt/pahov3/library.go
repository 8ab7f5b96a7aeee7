package pahov3

import (
	"fmt"
	"strings"
	"sync"

	"github.com/benmeehan/imqtt/pkg/mqtt"
	paho "github.com/eclipse/paho.mqtt.golang"
)

const modulePath = "github.com/eclipse/paho.mqtt.golang"

var library = mqtt.NewLibrary("paho.mqtt.golang", modulePath, initLibrary, teardownLibrary)

// sinks are the open transports. paho's loggers are package level, so its
// output goes to every open transport's log event.
var sinks = struct {
	mu sync.Mutex
	m  map[*Transport]struct{}
}{m: make(map[*Transport]struct{})}

func addSink(t *Transport) {
	sinks.mu.Lock()
	defer sinks.mu.Unlock()
	sinks.m[t] = struct{}{}
}

func removeSink(t *Transport) {
	sinks.mu.Lock()
	defer sinks.mu.Unlock()
	delete(sinks.m, t)
}

func forward(level mqtt.LogLevel, text string) {
	sinks.mu.Lock()
	targets := make([]mqtt.TransportEvents, 0, len(sinks.m))
	for t := range sinks.m {
		targets = append(targets, t.events)
	}
	sinks.mu.Unlock()

	for _, events := range targets {
		events.OnLog(level, "paho: "+text)
	}
}

// initLibrary routes paho's package level loggers to the open transports for
// as long as a client holds a library reference.
func initLibrary() error {
	paho.CRITICAL = pahoLogger{level: mqtt.LogError}
	paho.ERROR = pahoLogger{level: mqtt.LogError}
	paho.WARN = pahoLogger{level: mqtt.LogWarning}
	return nil
}

func teardownLibrary() {
	paho.CRITICAL = paho.NOOPLogger{}
	paho.ERROR = paho.NOOPLogger{}
	paho.WARN = paho.NOOPLogger{}
}

// pahoLogger implements paho.Logger on top of the transport log events.
type pahoLogger struct {
	level mqtt.LogLevel
}

func (l pahoLogger) Println(v ...interface{}) {
	forward(l.level, strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l pahoLogger) Printf(format string, v ...interface{}) {
	forward(l.level, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Package backend selects an MQTT client library by name.
package backend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/benmeehan/imqtt/pkg/mqtt/pahov3"
	"github.com/benmeehan/imqtt/pkg/mqtt/pahov5"
)

const (
	PahoV3 = "paho-v3"
	PahoV5 = "paho-v5"
)

var constructors = map[string]func() mqtt.Backend{
	PahoV3: func() mqtt.Backend { return pahov3.NewBackend() },
	PahoV5: func() mqtt.Backend { return pahov5.NewBackend() },
}

// New returns the back-end registered under name. The library's own log
// output goes to the log callback of each client using it.
func New(name string) (mqtt.Backend, error) {
	ctor, ok := constructors[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown backend %q, expected one of %s", mqtt.ErrInvalidConfig, name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names lists the registered back-ends.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

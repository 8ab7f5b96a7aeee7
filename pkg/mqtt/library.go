package mqtt

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Library guards process-wide initialization of one back-end. The first
// Acquire runs init, the last Release runs teardown.
type Library struct {
	name     string
	module   string
	init     func() error
	teardown func()

	mu   sync.Mutex
	refs int
}

// NewLibrary describes a back-end. module is the Go module path used to look
// up the version; init and teardown may be nil.
func NewLibrary(name, module string, init func() error, teardown func()) *Library {
	return &Library{name: name, module: module, init: init, teardown: teardown}
}

// Acquire takes a reference, initializing the back-end if it is the first one.
func (l *Library) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refs == 0 && l.init != nil {
		if err := l.init(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", l.name, err)
		}
	}
	l.refs++
	return nil
}

// Release drops a reference. Releasing more often than acquiring is a no-op.
func (l *Library) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refs == 0 {
		return
	}
	l.refs--
	if l.refs == 0 && l.teardown != nil {
		l.teardown()
	}
}

// Refs returns the number of outstanding references.
func (l *Library) Refs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refs
}

func (l *Library) Name() string { return l.name }

// Version returns "<name> <module version>", or "<name> (unknown)" when the
// binary carries no build information for the module.
func (l *Library) Version() string {
	return l.name + " " + ModuleVersion(l.module)
}

// ModuleVersion looks up the version of a dependency in the running binary.
func ModuleVersion(path string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "(unknown)"
	}
	if info.Main.Path == path {
		return info.Main.Version
	}
	for _, dep := range info.Deps {
		if dep.Path != path {
			continue
		}
		if dep.Replace != nil {
			return dep.Replace.Version
		}
		return dep.Version
	}
	return "(unknown)"
}

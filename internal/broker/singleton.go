package broker

import (
	"sync"

	"github.com/go-logr/logr"

	"github.com/tenzoki/mcpbroker/internal/config"
)

var (
	instanceMu sync.Mutex
	instance   *Broker
)

// GetBroker returns the shared process-wide broker, constructing it on
// first call under a construction-exclusion lock (the core's
// [Uninit]→[Running] transition). Subsequent calls return the same
// instance until ShutdownBroker is called, after which the next GetBroker
// call constructs a fresh Running instance — any handle obtained before
// shutdown remains permanently Stopped.
func GetBroker() *Broker {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		instance = New(config.Default(), logr.Discard())
	}
	return instance
}

// SetGlobalLogger constructs the singleton right away with log as its
// logger, if no instance exists yet. Has no effect once an instance has
// already been constructed, and the logger is not remembered: an instance
// that GetBroker constructs after ShutdownBroker uses a discard logger.
// Callers that need a custom logger on an existing instance should use New
// directly instead of the singleton accessor.
func SetGlobalLogger(log logr.Logger) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		instance = New(config.Default(), log)
	}
}

// ShutdownBroker tears down the process-wide broker ([Running]→[Stopped]),
// joining its dispatch worker, and clears the singleton slot so a
// subsequent GetBroker call constructs a fresh instance. A no-op if no
// broker has been constructed yet.
func ShutdownBroker() {
	instanceMu.Lock()
	b := instance
	instance = nil
	instanceMu.Unlock()

	if b != nil {
		b.Shutdown()
	}
}

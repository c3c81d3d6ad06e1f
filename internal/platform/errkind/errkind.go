// Package errkind maps sentinel errors to stable kind codes ("PeriodClosed",
// "UnbalancedEntry", ...). Audit records and HTTP responses carry the code so
// callers can react without parsing messages.
package errkind

import (
	"errors"
	"sync"
)

// Unknown is returned for errors that were never registered.
const Unknown = "Internal"

type entry struct {
	err  error
	kind string
}

var (
	mu       sync.RWMutex
	registry []entry
)

// Register associates a sentinel with a kind code. Packages call it from init.
func Register(err error, kind string) {
	mu.Lock()
	defer mu.Unlock()
	registry = append(registry, entry{err: err, kind: kind})
}

// Of returns the kind code of the first registered sentinel matched by errors.Is.
func Of(err error) string {
	if err == nil {
		return ""
	}
	mu.RLock()
	defer mu.RUnlock()
	for _, e := range registry {
		if errors.Is(err, e.err) {
			return e.kind
		}
	}
	return Unknown
}

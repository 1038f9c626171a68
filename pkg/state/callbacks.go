package state

import (
	"github.com/sirupsen/logrus"
)

// Callback is caller-supplied logic invoked when a reply or notification
// arrives. The payload is opaque row bytes; an empty payload means "no data".
// A nil Callback is allowed for fire-and-forget commands.
type Callback func(payload []byte)

// Handle identifies a pending callback. Handles are allocated monotonically
// and retired handles are never reissued within a process lifetime.
type Handle int64

// CallbackRegistry indexes the callbacks awaiting replies or notifications.
// It performs no locking: the registry is owned by the goroutine driving the
// client's event loop.
//
// A command whose reply never arrives keeps its registration forever; no
// eviction exists.
type CallbackRegistry struct {
	syslog    *logrus.Entry
	next      Handle
	callbacks map[Handle]Callback
}

// NewCallbackRegistry creates an empty registry.
func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{
		syslog:    logrus.WithField("component", "callback-registry"),
		callbacks: map[Handle]Callback{},
	}
}

// Add registers a callback and returns the handle that routes its reply back.
func (r *CallbackRegistry) Add(cb Callback) Handle {
	handle := r.next
	r.next++
	r.callbacks[handle] = cb
	return handle
}

// Get returns the callback registered under the given handle. Asking for a
// retired or never-issued handle means the reply bookkeeping is broken, and
// aborts the process.
func (r *CallbackRegistry) Get(handle Handle) Callback {
	cb, ok := r.callbacks[handle]
	if !ok {
		r.syslog.Fatalf("lookup of unknown callback handle %d", handle)
	}
	return cb
}

// Remove retires the handle permanently.
func (r *CallbackRegistry) Remove(handle Handle) {
	delete(r.callbacks, handle)
}

// Len returns the number of live registrations.
func (r *CallbackRegistry) Len() int {
	return len(r.callbacks)
}

package state

import (
	"github.com/sirupsen/logrus"
)

// dispatchCommandReply decodes one reply to an ordinary command and hands the
// payload to the callback registered under handle. Command callbacks fire
// exactly once: the registration is retired afterwards.
//
// Decode rules: nil replies and status replies carry no data and produce an
// empty payload; a bulk reply produces its bytes; an array reply produces the
// bytes of its last element. An error reply from the store is logged and
// still produces an empty payload. Every other shape is a protocol violation
// and aborts the process.
func dispatchCommandReply(syslog *logrus.Entry, registry *CallbackRegistry, handle Handle,
	reply interface{}, storeErr error,
) {
	var payload []byte
	if storeErr != nil {
		// The callback cannot tell this empty payload apart from a
		// legitimately empty reply; the log line is the only trace.
		syslog.WithError(storeErr).Errorf("store error in the reply for callback %d", handle)
	} else {
		switch reply := reply.(type) {
		case nil:
		case []byte:
			payload = reply
		case string:
			// Status replies acknowledge without data.
		case []interface{}:
			payload = lastElement(syslog, reply)
		default:
			syslog.Fatalf("unexpected reply type %T for callback %d", reply, handle)
		}
	}

	callback := registry.Get(handle)
	if callback != nil {
		callback(payload)
	}
	registry.Remove(handle)
}

// lastElement pulls the payload out of an array reply; the store's multi-bulk
// convention puts the answer in the final element.
func lastElement(syslog *logrus.Entry, reply []interface{}) []byte {
	if len(reply) == 0 {
		syslog.Fatalf("empty array reply from the store")
	}
	switch last := reply[len(reply)-1].(type) {
	case nil:
		return nil
	case []byte:
		return last
	default:
		syslog.Fatalf("unexpected type %T for the final element of an array reply", last)
		return nil
	}
}

package state

import (
	"context"
	"sync/atomic"

	"github.com/gomodule/redigo/redis"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/strand-sched/strand/pkg/eventloop"
	"github.com/strand-sched/strand/pkg/syncx/errgroupx"
)

// subscribeConn drives the asynchronous subscribe connection. The store pushes
// notifications here instead of replying to commands, so deliveries are routed
// by subscription target rather than by pending request.
type subscribeConn struct {
	syslog   *logrus.Entry
	psc      redis.PubSubConn
	registry *CallbackRegistry

	closed   atomic.Bool
	attached bool

	// routes maps a subscription target to the handle receiving its
	// notifications. Mutated by subscribe and read at dispatch, both on the
	// loop goroutine.
	routes map[string]Handle
}

func newSubscribeConn(conn redis.Conn, registry *CallbackRegistry, syslog *logrus.Entry) *subscribeConn {
	return &subscribeConn{
		syslog:   syslog.WithField("conn", "subscribe"),
		psc:      redis.PubSubConn{Conn: conn},
		registry: registry,
		routes:   map[string]Handle{},
	}
}

// subscribe records the routing for target and issues SUBSCRIBE. Within one
// subscription, notifications arrive in publish order.
func (s *subscribeConn) subscribe(target string, handle Handle) error {
	if s.closed.Load() {
		return errors.New("subscribe connection is closed")
	}
	if err := s.psc.Conn.Err(); err != nil {
		return errors.Wrap(err, "subscribe connection is in an error state")
	}

	s.routes[target] = handle
	if err := s.psc.Subscribe(target); err != nil {
		delete(s.routes, target)
		return errors.Wrap(err, "issuing subscribe")
	}
	return nil
}

func (s *subscribeConn) attach(loop *eventloop.Loop, group *errgroupx.Group) error {
	if s.attached {
		return errors.New("subscribe connection is already attached to a loop")
	}
	s.attached = true
	group.Go(func(_ context.Context) error {
		return s.pump(loop)
	})
	return nil
}

// pump forwards pubsub deliveries to the loop until the connection dies. All
// decoding decisions happen on the loop goroutine; the pump only ferries.
func (s *subscribeConn) pump(loop *eventloop.Loop) error {
	for {
		var post func()
		switch msg := s.psc.Receive().(type) {
		case redis.Subscription:
			post = func() { s.dispatch(msg.Kind, msg.Channel, nil) }
		case redis.Message:
			post = func() { s.dispatch("message", msg.Channel, msg.Data) }
		case redis.Pong:
			post = func() { s.dispatch("pong", "", nil) }
		case error:
			if s.closed.Load() {
				return nil
			}
			if storeErr, ok := msg.(redis.Error); ok {
				// An error reply on this connection cannot be tied back to
				// one subscription, so it is logged and nothing more.
				s.syslog.Errorf("store error on the subscribe connection: %v", storeErr)
				continue
			}
			s.syslog.WithError(msg).Error("subscribe connection broke")
			return msg
		}

		if err := loop.Post(post); err != nil {
			s.syslog.WithError(err).Warn("dropping pubsub delivery")
		}
	}
}

// dispatch decodes one delivery. The "subscribe" acknowledgment becomes an
// empty payload meaning the subscription is established; "message" carries
// the published payload, which must not be empty. Anything else is a protocol
// violation. The handle is never retired here: subscription callbacks fire
// for every notification on their target.
func (s *subscribeConn) dispatch(kind, target string, data []byte) {
	switch kind {
	case "subscribe":
		s.invoke(target, nil)
	case "message":
		if len(data) == 0 {
			s.syslog.Fatalf("empty message received on subscription %q", target)
		}
		s.invoke(target, data)
	default:
		s.syslog.Fatalf("unknown pubsub message type %q from the state store", kind)
	}
}

func (s *subscribeConn) invoke(target string, payload []byte) {
	handle, ok := s.routes[target]
	if !ok {
		s.syslog.Fatalf("notification for a subscription that was never made: %q", target)
	}
	if callback := s.registry.Get(handle); callback != nil {
		callback(payload)
	}
}

func (s *subscribeConn) close() error {
	s.closed.Store(true)
	return s.psc.Close()
}

package state

import (
	"context"
	"sync/atomic"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/strand-sched/strand/pkg/eventloop"
	"github.com/strand-sched/strand/pkg/syncx/errgroupx"
	"github.com/strand-sched/strand/pkg/syncx/queue"
)

// request is one queued asynchronous command. The handle rides along so the
// reply can be routed back to its callback.
type request struct {
	command string
	args    []interface{}
	handle  Handle
}

// commandConn drives the asynchronous command connection. Requests are
// enqueued without blocking; a single worker performs the round trips in FIFO
// order, so replies on this connection come back in issue order.
type commandConn struct {
	syslog   *logrus.Entry
	conn     redis.Conn
	registry *CallbackRegistry

	pending  *queue.Queue[request]
	closed   atomic.Bool
	attached bool
}

func newCommandConn(conn redis.Conn, registry *CallbackRegistry, syslog *logrus.Entry) *commandConn {
	return &commandConn{
		syslog:   syslog.WithField("conn", "command"),
		conn:     conn,
		registry: registry,
		pending:  queue.New[request](),
	}
}

// run encodes and enqueues one request. Argument bytes pass through untouched,
// so ids and payloads containing zero bytes survive the trip.
func (c *commandConn) run(command string, id uuid.UUID, payload []byte, channel Channel, handle Handle) error {
	if c.closed.Load() {
		return errors.New("command connection is closed")
	}
	if err := c.conn.Err(); err != nil {
		return errors.Wrap(err, "command connection is in an error state")
	}

	args := []interface{}{int(channel), id[:]}
	if len(payload) > 0 {
		args = append(args, payload)
	}
	c.pending.Put(request{command: command, args: args, handle: handle})
	return nil
}

func (c *commandConn) attach(loop *eventloop.Loop, group *errgroupx.Group) error {
	if c.attached {
		return errors.New("command connection is already attached to a loop")
	}
	c.attached = true
	group.Go(func(ctx context.Context) error {
		return c.pump(ctx, loop)
	})
	return nil
}

// pump performs queued round trips until shutdown or a broken connection.
func (c *commandConn) pump(ctx context.Context, loop *eventloop.Loop) error {
	for {
		req, err := c.pending.GetWithContext(ctx)
		if err != nil {
			return nil
		}

		reply, err := c.conn.Do(req.command, req.args...)
		if err != nil && !isStoreError(err) {
			if c.closed.Load() {
				return nil
			}
			// The handle stays registered: a command that lost its reply is
			// never completed or failed.
			c.syslog.WithError(err).Errorf("command connection broke running %s", req.command)
			return err
		}

		if postErr := loop.Post(func() {
			dispatchCommandReply(c.syslog, c.registry, req.handle, reply, err)
		}); postErr != nil {
			c.syslog.WithError(postErr).Warnf("dropping reply for %s", req.command)
		}
	}
}

func (c *commandConn) close() error {
	c.closed.Store(true)
	return c.conn.Close()
}

// isStoreError distinguishes an error reply sent by the store from a
// transport failure. Replies never pass through wrapping, so a plain type
// assertion is enough.
func isStoreError(err error) bool {
	_, ok := err.(redis.Error)
	return ok
}

package state

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/strand-sched/strand/pkg/eventloop"
)

// fakeCommand is one recorded Do or Send invocation.
type fakeCommand struct {
	name string
	args []interface{}
}

type fakeReply struct {
	value interface{}
	err   error
}

// fakeConn is an in-memory stand-in for a store connection. Do consumes
// scripted replies in order and records what it served; Receive blocks on
// pushed deliveries, which is enough to play the subscribe connection.
type fakeConn struct {
	mu       sync.Mutex
	closed   bool
	errState error
	commands []fakeCommand
	sent     []fakeCommand
	replies  []fakeReply

	pushes chan interface{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{pushes: make(chan interface{}, 16)}
}

// script appends one canned reply for a future Do call. An unscripted Do
// replies (nil, nil).
func (f *fakeConn) script(value interface{}, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, fakeReply{value: value, err: err})
}

// push queues one raw pubsub delivery for Receive. An error value is returned
// from Receive as an error.
func (f *fakeConn) push(value interface{}) {
	f.pushes <- value
}

func (f *fakeConn) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errState = err
}

func (f *fakeConn) recorded() []fakeCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCommand(nil), f.commands...)
}

func (f *fakeConn) sentCommands() []fakeCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCommand(nil), f.sent...)
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.pushes)
	}
	return nil
}

func (f *fakeConn) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errState
}

func (f *fakeConn) Do(name string, args ...interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errors.New("use of closed connection")
	}
	f.commands = append(f.commands, fakeCommand{name: name, args: args})
	if len(f.replies) == 0 {
		return nil, nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply.value, reply.err
}

func (f *fakeConn) Send(name string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("use of closed connection")
	}
	f.sent = append(f.sent, fakeCommand{name: name, args: args})
	return nil
}

func (f *fakeConn) Flush() error {
	return nil
}

func (f *fakeConn) Receive() (interface{}, error) {
	value, ok := <-f.pushes
	if !ok {
		return nil, errors.New("use of closed connection")
	}
	if err, isErr := value.(error); isErr {
		return nil, err
	}
	return value, nil
}

// testLogger turns fatal log calls into panics so the aborting paths can be
// asserted with require.Panics.
func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.ExitFunc = func(int) { panic("fatal log") }
	return logger.WithField("component", "test")
}

// newTestClient returns a connected client wired to three fake connections,
// in dialing order: setup, command, subscribe.
func newTestClient(t *testing.T) (*Client, *fakeConn, *fakeConn, *fakeConn) {
	t.Helper()
	setup, commands, sub := newFakeConn(), newFakeConn(), newFakeConn()
	conns := []redis.Conn{setup, commands, sub}
	dials := 0
	dial := func(string, int) (redis.Conn, error) {
		conn := conns[dials]
		dials++
		return conn, nil
	}
	client := NewClient(
		Config{ConnectRetries: 0, ConnectBackoff: time.Millisecond},
		WithDialer(dial), WithLogger(testLogger()),
	)
	require.NoError(t, client.Connect("localhost", 4630))
	return client, setup, commands, sub
}

// startLoop runs an event loop on a background goroutine and returns it with
// a stop function.
func startLoop(t *testing.T) (*eventloop.Loop, func()) {
	t.Helper()
	loop := eventloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	return loop, func() {
		cancel()
		<-done
	}
}

// recv reads one value with a timeout, failing the test instead of hanging.
func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case value := <-ch:
		return value
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a delivery")
		panic("unreachable")
	}
}

package state

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/strand-sched/strand/pkg/eventloop"
	"github.com/strand-sched/strand/pkg/syncx/errgroupx"
)

// Config holds the connection settings of the store client.
type Config struct {
	// ConnectRetries is how many times a failed connection attempt is retried
	// before startup is aborted.
	ConnectRetries int
	// ConnectBackoff separates consecutive connection attempts.
	ConnectBackoff time.Duration
}

// Dialer opens one connection to the store.
type Dialer func(address string, port int) (redis.Conn, error)

// Option configures a client.
type Option func(c *Client)

// WithLogger replaces the client's logger.
func WithLogger(syslog *logrus.Entry) Option {
	return func(c *Client) { c.syslog = syslog }
}

// WithDialer replaces the TCP dialer; tests use it to wire in fake
// connections.
func WithDialer(dial Dialer) Option {
	return func(c *Client) { c.dial = dial }
}

// Client synchronizes cluster state through the shared store. It owns three
// connections: a synchronous one used only during setup, an asynchronous
// command connection, and an asynchronous subscribe connection. The store
// multiplexes subscription traffic separately from command traffic, so the
// two asynchronous connections stay distinct.
//
// A client and its registry must only be driven from one goroutine: the one
// running the attached event loop.
type Client struct {
	syslog *logrus.Entry
	cfg    Config
	dial   Dialer

	registry *CallbackRegistry
	group    *errgroupx.Group

	setup    redis.Conn
	commands *commandConn
	sub      *subscribeConn
}

// NewClient creates a client. It does not connect.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		syslog:   logrus.WithField("component", "state-client"),
		cfg:      cfg,
		dial:     dialTCP,
		registry: NewCallbackRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func dialTCP(address string, port int) (redis.Conn, error) {
	return redis.Dial("tcp", fmt.Sprintf("%s:%d", address, port))
}

// Registry returns the callback registry backing this client. Callers use it
// to register continuations before issuing commands, and to retire a
// subscription callback they no longer want.
func (c *Client) Registry() *CallbackRegistry {
	return c.registry
}

// Connect establishes all three connections. It blocks through a bounded
// retry loop for the first connection and aborts the process when the retries
// are exhausted; without the store the node cannot participate in the
// cluster. A store-side error on the one synchronous setup command is
// returned to the caller instead.
func (c *Client) Connect(address string, port int) error {
	target := fmt.Sprintf("%s:%d", address, port)

	attempt := func() error {
		conn, err := c.dial(address, port)
		if err != nil {
			c.syslog.WithError(err).Errorf("failed to connect to state store at %s; retrying", target)
			return err
		}
		c.setup = conn
		return nil
	}
	policy := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(c.cfg.ConnectBackoff), uint64(c.cfg.ConnectRetries))
	if err := backoff.Retry(attempt, policy); err != nil {
		c.syslog.WithError(err).Fatalf("giving up on the state store at %s after %d attempts",
			target, c.cfg.ConnectRetries+1)
	}

	// Keyspace notifications let other subsystems watch key changes out of
	// band; enabling them is the one command run synchronously.
	if _, err := c.setup.Do("CONFIG", "SET", "notify-keyspace-events", "Kl"); err != nil {
		return errors.Wrap(err, "enabling keyspace notifications")
	}

	commands, err := c.dial(address, port)
	if err == nil && commands.Err() != nil {
		err = commands.Err()
	}
	if err != nil {
		c.syslog.WithError(err).Fatalf("could not open the command connection to %s", target)
	}
	c.commands = newCommandConn(commands, c.registry, c.syslog)

	sub, err := c.dial(address, port)
	if err == nil && sub.Err() != nil {
		err = sub.Err()
	}
	if err != nil {
		c.syslog.WithError(err).Fatalf("could not open the subscribe connection to %s", target)
	}
	c.sub = newSubscribeConn(sub, c.registry, c.syslog)

	c.syslog.Infof("connected to state store at %s", target)
	return nil
}

// AttachToEventLoop starts delivering replies and notifications: both
// asynchronous connections begin pumping into the given loop, and every
// registered callback from then on runs on the loop goroutine.
func (c *Client) AttachToEventLoop(loop *eventloop.Loop) error {
	if c.commands == nil || c.sub == nil {
		return errors.New("client is not connected")
	}
	if c.group != nil {
		return errors.New("client is already attached to an event loop")
	}

	c.group = errgroupx.WithContext(context.Background())
	if err := c.commands.attach(loop, c.group); err != nil {
		return errors.Wrap(err, "attaching command connection")
	}
	if err := c.sub.attach(loop, c.group); err != nil {
		return errors.Wrap(err, "attaching subscribe connection")
	}
	c.group.Go(func(ctx context.Context) error {
		// One pump failing cancels the group; close both connections so the
		// other pump does not stay blocked on a read.
		<-ctx.Done()
		_ = c.sub.close()
		_ = c.commands.close()
		return nil
	})
	return nil
}

// RunAsync issues one command on the asynchronous command connection. The
// wire arguments are the pubsub channel, the binary id, and then the payload
// when one is supplied. The eventual reply is delivered exactly once to the
// callback registered under handle. The returned error only covers local
// enqueue failures; store-side errors arrive later through the callback path.
func (c *Client) RunAsync(command string, id uuid.UUID, payload []byte, channel Channel, handle Handle) error {
	if c.commands == nil {
		return errors.New("client is not connected")
	}
	return c.commands.run(command, id, payload, channel, handle)
}

// SubscribeAsync subscribes to a channel's notifications on the asynchronous
// subscribe connection. A zero clientID subscribes to everything published on
// the channel; otherwise delivery is scoped to notifications addressed to
// that client. The callback registered under handle fires for every
// notification and is never retired by the client.
func (c *Client) SubscribeAsync(clientID uuid.UUID, channel Channel, handle Handle) error {
	if c.sub == nil {
		return errors.New("client is not connected")
	}
	if channel == ChannelNoPublish {
		c.syslog.Fatalf("subscription requested on the %v channel, which never publishes", channel)
	}
	return c.sub.subscribe(subscriptionTarget(channel, clientID), handle)
}

// subscriptionTarget combines a channel and an optional client scope into the
// store's subscription key.
func subscriptionTarget(channel Channel, clientID uuid.UUID) string {
	if clientID == uuid.Nil {
		return strconv.Itoa(int(channel))
	}
	return strconv.Itoa(int(channel)) + ":" + string(clientID[:])
}

// Wait blocks until the connection pumps exit. It returns nil after a clean
// Close and the first transport failure otherwise.
func (c *Client) Wait() error {
	if c.group == nil {
		return errors.New("client is not attached to an event loop")
	}
	return c.group.Wait()
}

// Close tears the three connections down together.
func (c *Client) Close() error {
	var result *multierror.Error
	if c.sub != nil {
		result = multierror.Append(result, c.sub.close())
	}
	if c.commands != nil {
		result = multierror.Append(result, c.commands.close())
	}
	if c.setup != nil {
		result = multierror.Append(result, c.setup.Close())
	}
	if c.group != nil {
		result = multierror.Append(result, c.group.Close())
	}
	return result.ErrorOrNil()
}

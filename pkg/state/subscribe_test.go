package state

import (
	"context"
	"testing"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/strand-sched/strand/pkg/eventloop"
)

// push helpers building raw pubsub wire replies.
func ack(target string) []interface{} {
	return []interface{}{[]byte("subscribe"), []byte(target), int64(1)}
}

func message(target string, data []byte) []interface{} {
	return []interface{}{[]byte("message"), []byte(target), data}
}

func TestSubscriptionDeliveries(t *testing.T) {
	client, _, _, sub := newTestClient(t)
	loop, stop := startLoop(t)
	defer stop()
	defer func() { _ = client.Close() }()

	deliveries := make(chan []byte, 8)
	handle := client.Registry().Add(func(p []byte) {
		deliveries <- append([]byte(nil), p...)
	})
	require.NoError(t, client.SubscribeAsync(uuid.Nil, ChannelTask, handle))
	require.NoError(t, client.AttachToEventLoop(loop))

	sub.push(ack("1"))
	sub.push(message("1", []byte("first")))
	sub.push(message("1", []byte("second")))

	require.Empty(t, recv(t, deliveries), "the first delivery is the empty established acknowledgment")
	require.Equal(t, []byte("first"), recv(t, deliveries))
	require.Equal(t, []byte("second"), recv(t, deliveries))

	lens := make(chan int, 1)
	require.NoError(t, loop.Post(func() { lens <- client.Registry().Len() }))
	require.Equal(t, 1, recv(t, lens), "subscription handles are never retired by the client")
}

func TestSubscribeStoreErrorIsLoggedAndSkipped(t *testing.T) {
	client, _, _, sub := newTestClient(t)
	loop, stop := startLoop(t)
	defer stop()
	defer func() { _ = client.Close() }()

	deliveries := make(chan []byte, 4)
	handle := client.Registry().Add(func(p []byte) {
		deliveries <- append([]byte(nil), p...)
	})
	require.NoError(t, client.SubscribeAsync(uuid.Nil, ChannelTask, handle))
	require.NoError(t, client.AttachToEventLoop(loop))

	sub.push(redis.Error("ERR subscription rejected"))
	sub.push(ack("1"))
	sub.push(message("1", []byte("still delivered")))

	require.Empty(t, recv(t, deliveries))
	require.Equal(t, []byte("still delivered"), recv(t, deliveries))
}

func TestEmptyMessageAborts(t *testing.T) {
	client, _, _, sub := newTestClient(t)
	loop := eventloop.New()
	defer func() { _ = client.Close() }()

	handle := client.Registry().Add(func([]byte) {})
	require.NoError(t, client.SubscribeAsync(uuid.Nil, ChannelTask, handle))
	require.NoError(t, client.AttachToEventLoop(loop))

	sub.push(ack("1"))
	sub.push(message("1", []byte{}))

	require.Panics(t, func() { _ = loop.Run(context.Background()) })
}

func TestUnknownDeliveryKindAborts(t *testing.T) {
	client, _, _, sub := newTestClient(t)
	loop := eventloop.New()
	defer func() { _ = client.Close() }()

	handle := client.Registry().Add(func([]byte) {})
	require.NoError(t, client.SubscribeAsync(uuid.Nil, ChannelTask, handle))
	require.NoError(t, client.AttachToEventLoop(loop))

	sub.push(ack("1"))
	sub.push([]interface{}{[]byte("unsubscribe"), []byte("1"), int64(0)})

	require.Panics(t, func() { _ = loop.Run(context.Background()) })
}

func TestUnroutedDeliveryAborts(t *testing.T) {
	client, _, _, sub := newTestClient(t)
	loop := eventloop.New()
	defer func() { _ = client.Close() }()

	require.NoError(t, client.AttachToEventLoop(loop))
	sub.push(message("4", []byte("nobody asked")))

	require.Panics(t, func() { _ = loop.Run(context.Background()) })
}

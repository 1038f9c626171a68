// Package state implements the client side of the shared cluster-state store:
// connection lifecycle, asynchronous command dispatch, pubsub subscriptions,
// and the typed tables the scheduler coordinates through.
package state

// Channel is the numeric discriminator identifying which logical notification
// topic a command or subscription targets. It travels on the wire as a plain
// integer argument.
type Channel int

const (
	// ChannelNoPublish marks tables whose writes notify nobody. Subscribing
	// to it is a caller bug.
	ChannelNoPublish Channel = iota
	// ChannelTask carries task lifecycle records.
	ChannelTask
	// ChannelNode carries node membership records.
	ChannelNode
	// ChannelObject carries object location records.
	ChannelObject
	// ChannelHeartbeat carries node liveness pings.
	ChannelHeartbeat
)

func (c Channel) String() string {
	switch c {
	case ChannelNoPublish:
		return "no-publish"
	case ChannelTask:
		return "task"
	case ChannelNode:
		return "node"
	case ChannelObject:
		return "object"
	case ChannelHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

package state

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Commands served by the store-side table module. The client treats the rows
// as opaque bytes; each table's channel number selects the table.
const (
	tableAddCommand    = "STRAND.TABLE_ADD"
	tableLookupCommand = "STRAND.TABLE_LOOKUP"
	heartbeatCommand   = "STRAND.HEARTBEAT"
)

// Table is a window onto one replicated table: rows are keyed by id, and
// writes notify the subscribers of the table's pubsub channel.
type Table struct {
	syslog  *logrus.Entry
	client  *Client
	channel Channel
}

func newTable(client *Client, name string, channel Channel) Table {
	return Table{
		syslog:  logrus.WithField("component", "table").WithField("table", name),
		client:  client,
		channel: channel,
	}
}

// Add writes one row. done, which may be nil, runs on the event loop once the
// store acknowledges the write.
func (t Table) Add(id uuid.UUID, row []byte, done Callback) error {
	handle := t.client.Registry().Add(done)
	if err := t.client.RunAsync(tableAddCommand, id, row, t.channel, handle); err != nil {
		t.client.Registry().Remove(handle)
		return err
	}
	return nil
}

// Lookup fetches one row. done receives the row bytes, or an empty payload
// when no row exists under id.
func (t Table) Lookup(id uuid.UUID, done Callback) error {
	handle := t.client.Registry().Add(done)
	if err := t.client.RunAsync(tableLookupCommand, id, nil, t.channel, handle); err != nil {
		t.client.Registry().Remove(handle)
		return err
	}
	return nil
}

// Subscribe starts delivering this table's notifications to notify: first an
// empty payload acknowledging that the subscription is established, then one
// payload per write. A zero scope delivers every write to the table;
// otherwise delivery is limited to rows addressed to that client. The
// returned handle stays registered until the caller retires it.
func (t Table) Subscribe(scope uuid.UUID, notify Callback) (Handle, error) {
	handle := t.client.Registry().Add(notify)
	if err := t.client.SubscribeAsync(scope, t.channel, handle); err != nil {
		t.client.Registry().Remove(handle)
		return 0, err
	}
	return handle, nil
}

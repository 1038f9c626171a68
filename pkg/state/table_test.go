package state

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestTaskTableAdd(t *testing.T) {
	client, _, commands, _ := newTestClient(t)
	loop, stop := startLoop(t)
	defer stop()
	defer func() { _ = client.Close() }()
	require.NoError(t, client.AttachToEventLoop(loop))

	tasks := NewTaskTable(client)
	spec := TaskSpec{
		TaskID:    uuid.New(),
		State:     TaskStatePending,
		Resources: map[string]float64{"CPU": 2, "GPU": 1},
	}

	acked := make(chan []byte, 1)
	commands.script("OK", nil)
	require.NoError(t, tasks.Add(spec, func(p []byte) { acked <- p }))
	require.Empty(t, recv(t, acked))

	recorded := commands.recorded()
	require.Len(t, recorded, 1)
	require.Equal(t, tableAddCommand, recorded[0].name)
	require.Equal(t, int(ChannelTask), recorded[0].args[0])
	require.Equal(t, spec.TaskID[:], recorded[0].args[1])

	var sent TaskSpec
	require.NoError(t, json.Unmarshal(recorded[0].args[2].([]byte), &sent))
	require.Equal(t, spec, sent)
}

func TestTaskTableLookup(t *testing.T) {
	client, _, commands, _ := newTestClient(t)
	loop, stop := startLoop(t)
	defer stop()
	defer func() { _ = client.Close() }()
	require.NoError(t, client.AttachToEventLoop(loop))

	tasks := NewTaskTable(client)
	want := TaskSpec{
		TaskID:    uuid.New(),
		State:     TaskStatePlaced,
		NodeID:    uuid.New(),
		Resources: map[string]float64{"CPU": 1},
	}
	row, err := json.Marshal(want)
	require.NoError(t, err)

	got := make(chan *TaskSpec, 2)
	commands.script(row, nil)
	require.NoError(t, tasks.Lookup(want.TaskID, func(spec *TaskSpec) { got <- spec }))
	require.Equal(t, &want, recv(t, got))

	require.NoError(t, tasks.Lookup(uuid.New(), func(spec *TaskSpec) { got <- spec }))
	require.Nil(t, recv(t, got), "an unknown task looks up as nil")

	recorded := commands.recorded()
	require.Len(t, recorded, 2)
	require.Equal(t, tableLookupCommand, recorded[0].name)
	require.Len(t, recorded[0].args, 2, "lookups carry no payload")
}

func TestTaskTableSubscribe(t *testing.T) {
	client, _, _, sub := newTestClient(t)
	loop, stop := startLoop(t)
	defer stop()
	defer func() { _ = client.Close() }()

	tasks := NewTaskTable(client)
	got := make(chan TaskSpec, 4)
	_, err := tasks.Subscribe(uuid.Nil, func(spec TaskSpec) { got <- spec })
	require.NoError(t, err)
	require.NoError(t, client.AttachToEventLoop(loop))

	first := TaskSpec{TaskID: uuid.New(), State: TaskStatePending}
	second := TaskSpec{TaskID: uuid.New(), State: TaskStateFinished}
	firstRow, err := json.Marshal(first)
	require.NoError(t, err)
	secondRow, err := json.Marshal(second)
	require.NoError(t, err)

	sub.push(ack("1"))
	sub.push(message("1", firstRow))
	sub.push(message("1", []byte("{not a row")))
	sub.push(message("1", secondRow))

	require.Equal(t, first, recv(t, got), "the acknowledgment is consumed before any record")
	require.Equal(t, second, recv(t, got), "undecodable rows are skipped")
}

func TestNodeTableHeartbeat(t *testing.T) {
	client, _, commands, _ := newTestClient(t)
	loop, stop := startLoop(t)
	defer stop()
	defer func() { _ = client.Close() }()
	require.NoError(t, client.AttachToEventLoop(loop))

	nodes := NewNodeTable(client)
	nodeID := uuid.New()
	acked := make(chan []byte, 1)
	require.NoError(t, nodes.Heartbeat(nodeID, func(p []byte) { acked <- p }))
	require.Empty(t, recv(t, acked))

	recorded := commands.recorded()
	require.Len(t, recorded, 1)
	require.Equal(t, heartbeatCommand, recorded[0].name)
	require.Equal(t, []interface{}{int(ChannelHeartbeat), nodeID[:]}, recorded[0].args)
}

func TestObjectTable(t *testing.T) {
	client, _, commands, _ := newTestClient(t)
	loop, stop := startLoop(t)
	defer stop()
	defer func() { _ = client.Close() }()
	require.NoError(t, client.AttachToEventLoop(loop))

	objects := NewObjectTable(client)
	record := ObjectRecord{ObjectID: uuid.New(), NodeID: uuid.New()}

	acked := make(chan []byte, 1)
	commands.script("OK", nil)
	require.NoError(t, objects.Add(record, func(p []byte) { acked <- p }))
	require.Empty(t, recv(t, acked))

	recorded := commands.recorded()
	require.Equal(t, record.ObjectID[:], recorded[0].args[1], "object rows are keyed by object id")
	var sent ObjectRecord
	require.NoError(t, json.Unmarshal(recorded[0].args[2].([]byte), &sent))
	require.Equal(t, record, sent)

	want := ObjectLocations{ObjectID: record.ObjectID, NodeIDs: []uuid.UUID{record.NodeID, uuid.New()}}
	row, err := json.Marshal(want)
	require.NoError(t, err)

	got := make(chan *ObjectLocations, 2)
	commands.script(row, nil)
	require.NoError(t, objects.Lookup(record.ObjectID, func(l *ObjectLocations) { got <- l }))
	require.Equal(t, &want, recv(t, got))

	require.NoError(t, objects.Lookup(uuid.New(), func(l *ObjectLocations) { got <- l }))
	require.Nil(t, recv(t, got), "an unknown object looks up as nil")
}

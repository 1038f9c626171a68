package state

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Task lifecycle markers published on the task channel.
const (
	TaskStatePending    = "pending"
	TaskStatePlaced     = "placed"
	TaskStateFinished   = "finished"
	TaskStateInfeasible = "infeasible"
)

// TaskSpec is one row of the task table: what to run, how much capacity it
// needs, and where it stands.
type TaskSpec struct {
	TaskID    uuid.UUID          `json:"task_id"`
	State     string             `json:"state"`
	NodeID    uuid.UUID          `json:"node_id"`
	Resources map[string]float64 `json:"resources"`
}

// TaskTable publishes and observes task lifecycle records.
type TaskTable struct {
	table Table
}

// NewTaskTable creates the task table over the given client.
func NewTaskTable(client *Client) *TaskTable {
	return &TaskTable{table: newTable(client, "task", ChannelTask)}
}

// Add writes a task record; every subscriber of the task channel sees it.
func (t *TaskTable) Add(spec TaskSpec, done Callback) error {
	row, err := json.Marshal(spec)
	if err != nil {
		return errors.Wrap(err, "encoding task record")
	}
	return t.table.Add(spec.TaskID, row, done)
}

// Lookup fetches a task record; done receives nil when the task is unknown.
func (t *TaskTable) Lookup(taskID uuid.UUID, done func(*TaskSpec)) error {
	return t.table.Lookup(taskID, func(payload []byte) {
		done(t.decode(payload))
	})
}

// Subscribe delivers every task record written to the table. The empty
// acknowledgment payload is consumed here; notify only sees decoded records.
func (t *TaskTable) Subscribe(scope uuid.UUID, notify func(TaskSpec)) (Handle, error) {
	return t.table.Subscribe(scope, func(payload []byte) {
		if len(payload) == 0 {
			t.table.syslog.Debug("task subscription established")
			return
		}
		if spec := t.decode(payload); spec != nil {
			notify(*spec)
		}
	})
}

// decode returns nil for empty payloads and rows that fail to parse; parse
// failures are logged and skipped rather than surfaced.
func (t *TaskTable) decode(payload []byte) *TaskSpec {
	if len(payload) == 0 {
		return nil
	}
	var spec TaskSpec
	if err := json.Unmarshal(payload, &spec); err != nil {
		t.table.syslog.WithError(err).Error("discarding undecodable task record")
		return nil
	}
	return &spec
}

// NodeInfo is one row of the node table: a cluster member and its address.
type NodeInfo struct {
	NodeID    uuid.UUID          `json:"node_id"`
	Host      string             `json:"host"`
	Port      int                `json:"port"`
	Resources map[string]float64 `json:"resources"`
}

// NodeTable publishes and observes cluster membership.
type NodeTable struct {
	table Table
}

// NewNodeTable creates the node table over the given client.
func NewNodeTable(client *Client) *NodeTable {
	return &NodeTable{table: newTable(client, "node", ChannelNode)}
}

// Add announces a node to the cluster.
func (t *NodeTable) Add(info NodeInfo, done Callback) error {
	row, err := json.Marshal(info)
	if err != nil {
		return errors.Wrap(err, "encoding node record")
	}
	return t.table.Add(info.NodeID, row, done)
}

// Lookup fetches a node record; done receives nil when the node is unknown.
func (t *NodeTable) Lookup(nodeID uuid.UUID, done func(*NodeInfo)) error {
	return t.table.Lookup(nodeID, func(payload []byte) {
		done(t.decode(payload))
	})
}

// Subscribe delivers membership changes.
func (t *NodeTable) Subscribe(scope uuid.UUID, notify func(NodeInfo)) (Handle, error) {
	return t.table.Subscribe(scope, func(payload []byte) {
		if len(payload) == 0 {
			t.table.syslog.Debug("node subscription established")
			return
		}
		if info := t.decode(payload); info != nil {
			notify(*info)
		}
	})
}

// Heartbeat reports that nodeID is alive. done, which may be nil, runs once
// the store acknowledges the ping.
func (t *NodeTable) Heartbeat(nodeID uuid.UUID, done Callback) error {
	handle := t.table.client.Registry().Add(done)
	if err := t.table.client.RunAsync(
		heartbeatCommand, nodeID, nil, ChannelHeartbeat, handle); err != nil {
		t.table.client.Registry().Remove(handle)
		return err
	}
	return nil
}

func (t *NodeTable) decode(payload []byte) *NodeInfo {
	if len(payload) == 0 {
		return nil
	}
	var info NodeInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		t.table.syslog.WithError(err).Error("discarding undecodable node record")
		return nil
	}
	return &info
}

// ObjectRecord is one write to the object table: an object gained or lost a
// location.
type ObjectRecord struct {
	ObjectID uuid.UUID `json:"object_id"`
	NodeID   uuid.UUID `json:"node_id"`
	Removed  bool      `json:"removed,omitempty"`
}

// ObjectLocations is the store's answer to an object lookup: every node that
// currently holds the object.
type ObjectLocations struct {
	ObjectID uuid.UUID   `json:"object_id"`
	NodeIDs  []uuid.UUID `json:"node_ids"`
}

// ObjectTable publishes and observes object locations.
type ObjectTable struct {
	table Table
}

// NewObjectTable creates the object table over the given client.
func NewObjectTable(client *Client) *ObjectTable {
	return &ObjectTable{table: newTable(client, "object", ChannelObject)}
}

// Add records a location change for record.ObjectID.
func (t *ObjectTable) Add(record ObjectRecord, done Callback) error {
	row, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "encoding object record")
	}
	return t.table.Add(record.ObjectID, row, done)
}

// Lookup fetches the locations of an object; done receives nil when the
// object is unknown.
func (t *ObjectTable) Lookup(objectID uuid.UUID, done func(*ObjectLocations)) error {
	return t.table.Lookup(objectID, func(payload []byte) {
		if len(payload) == 0 {
			done(nil)
			return
		}
		var locations ObjectLocations
		if err := json.Unmarshal(payload, &locations); err != nil {
			t.table.syslog.WithError(err).Error("discarding undecodable object locations")
			done(nil)
			return
		}
		done(&locations)
	})
}

// Subscribe delivers object location changes.
func (t *ObjectTable) Subscribe(scope uuid.UUID, notify func(ObjectRecord)) (Handle, error) {
	return t.table.Subscribe(scope, func(payload []byte) {
		if len(payload) == 0 {
			t.table.syslog.Debug("object subscription established")
			return
		}
		var record ObjectRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			t.table.syslog.WithError(err).Error("discarding undecodable object record")
			return
		}
		notify(record)
	})
}

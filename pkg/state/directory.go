package state

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// OnLocationsFound receives the nodes currently holding an object.
type OnLocationsFound func(objectID uuid.UUID, nodeIDs []uuid.UUID)

// OnLocationsFailed reports that an object has no known locations.
type OnLocationsFailed func(objectID uuid.UUID)

// objectLookups is the slice of the object table the directory needs.
type objectLookups interface {
	Add(record ObjectRecord, done Callback) error
	Lookup(objectID uuid.UUID, done func(*ObjectLocations)) error
}

// ObjectDirectory answers where objects currently live. Lookups for the same
// object are deduplicated: while one is in flight, further requests just queue
// their callbacks onto it. Like the rest of the client, a directory is owned
// by the event loop goroutine and performs no locking.
type ObjectDirectory struct {
	syslog  *logrus.Entry
	objects objectLookups

	// pending holds the callbacks waiting on each in-flight lookup.
	pending map[uuid.UUID][]locationCallbacks
}

type locationCallbacks struct {
	success OnLocationsFound
	failure OnLocationsFailed
}

// NewObjectDirectory creates a directory over the given object table.
func NewObjectDirectory(objects objectLookups) *ObjectDirectory {
	return &ObjectDirectory{
		syslog:  logrus.WithField("component", "object-directory"),
		objects: objects,
		pending: map[uuid.UUID][]locationCallbacks{},
	}
}

// ReportObjectAdded records that nodeID now holds objectID.
func (d *ObjectDirectory) ReportObjectAdded(objectID, nodeID uuid.UUID) error {
	return d.objects.Add(ObjectRecord{ObjectID: objectID, NodeID: nodeID}, nil)
}

// ReportObjectRemoved records that nodeID no longer holds objectID.
func (d *ObjectDirectory) ReportObjectRemoved(objectID, nodeID uuid.UUID) error {
	return d.objects.Add(ObjectRecord{ObjectID: objectID, NodeID: nodeID, Removed: true}, nil)
}

// GetLocations asks the store where objectID lives and calls success with the
// answer, or failure when the object is unknown. If a lookup for objectID is
// already in flight, the callbacks wait on that lookup and no second request
// is issued.
func (d *ObjectDirectory) GetLocations(objectID uuid.UUID,
	success OnLocationsFound, failure OnLocationsFailed,
) error {
	if waiting, ok := d.pending[objectID]; ok {
		d.pending[objectID] = append(waiting, locationCallbacks{success, failure})
		return nil
	}
	d.pending[objectID] = []locationCallbacks{{success, failure}}

	err := d.objects.Lookup(objectID, func(locations *ObjectLocations) {
		waiting, ok := d.pending[objectID]
		if !ok {
			d.syslog.Debugf("dropping canceled location lookup for %s", objectID)
			return
		}
		delete(d.pending, objectID)

		for _, callbacks := range waiting {
			if locations == nil || len(locations.NodeIDs) == 0 {
				if callbacks.failure != nil {
					callbacks.failure(objectID)
				}
				continue
			}
			if callbacks.success != nil {
				callbacks.success(objectID, locations.NodeIDs)
			}
		}
	})
	if err != nil {
		delete(d.pending, objectID)
		return err
	}
	return nil
}

// Cancel drops every callback waiting on objectID. A reply that later arrives
// for the canceled lookup is ignored.
func (d *ObjectDirectory) Cancel(objectID uuid.UUID) {
	delete(d.pending, objectID)
}

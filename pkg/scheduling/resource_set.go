// Package scheduling implements the local resource accounting used by a node
// to decide whether a unit of work can run: multi-dimensional capacity
// vectors and the admission-control protocol over them.
package scheduling

import (
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ResourceSet is a capacity vector keyed by resource name. A name present in
// the set always maps to a strictly positive quantity; names absent from the
// set count as zero in all comparisons and arithmetic. ResourceSet performs no
// synchronization and is meant to be owned by a single scheduling loop.
type ResourceSet struct {
	capacity map[string]float64
}

// NewResourceSet creates an empty resource set.
func NewResourceSet() ResourceSet {
	return ResourceSet{capacity: map[string]float64{}}
}

// ResourceSetFromMap creates a resource set from the given capacity mapping.
// Entries with non-positive capacity are dropped.
func ResourceSetFromMap(capacity map[string]float64) ResourceSet {
	rs := NewResourceSet()
	for name, quantity := range capacity {
		rs.AddResource(name, quantity)
	}
	return rs
}

// AddResource sets the capacity of a single resource. A non-positive capacity
// removes the resource from the set.
func (rs ResourceSet) AddResource(name string, capacity float64) {
	if capacity <= 0 {
		delete(rs.capacity, name)
		return
	}
	rs.capacity[name] = capacity
}

// RemoveResource removes a single resource from the set.
func (rs ResourceSet) RemoveResource(name string) {
	delete(rs.capacity, name)
}

// GetResource returns the capacity of the named resource and whether it is
// present in the set.
func (rs ResourceSet) GetResource(name string) (float64, bool) {
	quantity, ok := rs.capacity[name]
	return quantity, ok
}

// AddResources adds the other set into this one, summing capacities over the
// union of resource names.
func (rs ResourceSet) AddResources(other ResourceSet) {
	for name, quantity := range other.capacity {
		rs.capacity[name] += quantity
	}
}

// SubtractResources subtracts the other set from this one. Callers must ensure
// other is a subset of this set first; a resource whose capacity reaches zero
// is removed.
func (rs ResourceSet) SubtractResources(other ResourceSet) {
	for name, quantity := range other.capacity {
		remaining := rs.capacity[name] - quantity
		if remaining <= 0 {
			delete(rs.capacity, name)
			continue
		}
		rs.capacity[name] = remaining
	}
}

// IsEqual reports whether both sets hold exactly the same capacity for every
// resource name, with absent names counting as zero.
func (rs ResourceSet) IsEqual(other ResourceSet) bool {
	return maps.Equal(rs.capacity, other.capacity)
}

// IsSubset reports whether, for every resource in this set, the other set
// holds at least as much capacity.
func (rs ResourceSet) IsSubset(other ResourceSet) bool {
	for name, quantity := range rs.capacity {
		if quantity > other.capacity[name] {
			return false
		}
	}
	return true
}

// IsSuperset reports whether, for every resource in the other set, this set
// holds at least as much capacity.
func (rs ResourceSet) IsSuperset(other ResourceSet) bool {
	return other.IsSubset(rs)
}

// Copy returns a deep copy of the set.
func (rs ResourceSet) Copy() ResourceSet {
	capacity := maps.Clone(rs.capacity)
	if capacity == nil {
		capacity = map[string]float64{}
	}
	return ResourceSet{capacity: capacity}
}

// ToMap returns the set as a plain capacity mapping.
func (rs ResourceSet) ToMap() map[string]float64 {
	capacity := maps.Clone(rs.capacity)
	if capacity == nil {
		capacity = map[string]float64{}
	}
	return capacity
}

func (rs ResourceSet) String() string {
	names := maps.Keys(rs.capacity)
	slices.Sort(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %g", name, rs.capacity[name]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

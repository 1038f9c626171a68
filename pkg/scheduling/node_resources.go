package scheduling

// Availability classifies whether a resource request can be granted now,
// later, or never on this node.
type Availability int

const (
	// Infeasible means the request exceeds the node's total capacity and can
	// never be satisfied here.
	Infeasible Availability = iota
	// ResourcesUnavailable means the request fits the node's total capacity
	// but too much of it is currently committed to running work.
	ResourcesUnavailable
	// Feasible means the request can be satisfied immediately.
	Feasible
)

func (a Availability) String() string {
	switch a {
	case Infeasible:
		return "infeasible"
	case ResourcesUnavailable:
		return "resources unavailable"
	case Feasible:
		return "feasible"
	default:
		return "unknown"
	}
}

// NodeResources tracks one node's configured capacity and how much of it is
// not currently committed to running work. It performs no synchronization;
// one instance is owned exclusively by the node's scheduling loop.
//
// Invariant: 0 <= available[name] <= total[name] for every resource name.
type NodeResources struct {
	total     ResourceSet
	available ResourceSet
}

// NewNodeResources creates the resource accounting for a node with the given
// total capacity. All capacity starts out available.
func NewNodeResources(total ResourceSet) *NodeResources {
	return &NodeResources{
		total:     total.Copy(),
		available: total.Copy(),
	}
}

// CheckResourcesSatisfied classifies the given request without mutating any
// state: Infeasible when the request exceeds total capacity,
// ResourcesUnavailable when it exceeds what is currently free, and Feasible
// otherwise.
func (n *NodeResources) CheckResourcesSatisfied(request ResourceSet) Availability {
	switch {
	case !request.IsSubset(n.total):
		return Infeasible
	case !request.IsSubset(n.available):
		return ResourcesUnavailable
	default:
		return Feasible
	}
}

// Acquire commits the given resources, subtracting them from the available
// capacity. It mutates nothing and returns false unless every named resource
// is currently free in the requested quantity.
func (n *NodeResources) Acquire(resources ResourceSet) bool {
	if !resources.IsSubset(n.available) {
		return false
	}
	n.available.SubtractResources(resources)
	return true
}

// Release returns previously acquired resources to the available capacity. It
// mutates nothing and returns false if the release would push any resource
// past the node's total capacity, which indicates a double release.
func (n *NodeResources) Release(resources ResourceSet) bool {
	restored := n.available.Copy()
	restored.AddResources(resources)
	if !restored.IsSubset(n.total) {
		return false
	}
	n.available = restored
	return true
}

// GetAvailableResources returns a copy of the currently uncommitted capacity.
func (n *NodeResources) GetAvailableResources() ResourceSet {
	return n.available.Copy()
}

// GetTotalResources returns a copy of the node's configured capacity.
func (n *NodeResources) GetTotalResources() ResourceSet {
	return n.total.Copy()
}

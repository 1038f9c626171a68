package internal

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/strand-sched/strand/internal/options"
	"github.com/strand-sched/strand/pkg/eventloop"
	"github.com/strand-sched/strand/pkg/scheduling"
	"github.com/strand-sched/strand/pkg/state"
	"github.com/strand-sched/strand/pkg/syncx/errgroupx"
)

// nodeService is one connection epoch of the daemon: a store client, the
// event loop driving it, and the resource accounting for this node. When the
// store connection breaks the whole service is discarded and rebuilt.
//
// All scheduling state (resources, running, waiting, claims) is owned by the
// event loop goroutine.
type nodeService struct {
	syslog *logrus.Entry

	version string
	opts    options.Options
	nodeID  uuid.UUID

	loop      *eventloop.Loop
	client    *state.Client
	tasks     *state.TaskTable
	nodes     *state.NodeTable
	objects   *state.ObjectTable
	directory *state.ObjectDirectory

	resources *scheduling.NodeResources
	running   map[uuid.UUID]scheduling.ResourceSet
	waiting   []state.TaskSpec

	// claims marks our placement records that have not yet echoed back on the
	// task channel. While a claim is outstanding it postdates any foreign
	// claim we receive.
	claims map[uuid.UUID]bool
}

// newNodeService connects to the store and assembles a service around the
// connection.
func newNodeService(version string, opts options.Options) (*nodeService, error) {
	client := state.NewClient(state.Config{
		ConnectRetries: opts.StoreConnectRetries,
		ConnectBackoff: time.Duration(opts.StoreConnectBackoff) * time.Millisecond,
	})
	if err := client.Connect(opts.StoreHost, opts.StorePort); err != nil {
		return nil, storeConnectionError{cause: err}
	}
	return newNodeServiceWithClient(version, opts, client)
}

func newNodeServiceWithClient(
	version string, opts options.Options, client *state.Client,
) (*nodeService, error) {
	nodeID, err := uuid.Parse(opts.NodeID)
	if err != nil {
		return nil, errors.Wrap(err, "parsing node id")
	}
	objects := state.NewObjectTable(client)
	return &nodeService{
		syslog:    logrus.WithField("component", "node").WithField("node-id", opts.NodeID),
		version:   version,
		opts:      opts,
		nodeID:    nodeID,
		loop:      eventloop.New(),
		client:    client,
		tasks:     state.NewTaskTable(client),
		nodes:     state.NewNodeTable(client),
		objects:   objects,
		directory: state.NewObjectDirectory(objects),
		resources: scheduling.NewNodeResources(scheduling.ResourceSetFromMap(opts.Resources)),
		running:   map[uuid.UUID]scheduling.ResourceSet{},
		claims:    map[uuid.UUID]bool{},
	}, nil
}

// run drives the service until the context is canceled or the store
// connection breaks, whichever comes first.
func (n *nodeService) run(ctx context.Context) error {
	n.syslog.Infof("strand node %s (built with %s)", n.version, runtime.Version())

	if err := n.client.AttachToEventLoop(n.loop); err != nil {
		return err
	}
	if err := n.loop.Post(n.bootstrap); err != nil {
		return err
	}

	// The loop runs application callbacks; recover turns a panic in one into
	// an orderly shutdown instead of a crash with half-written state.
	group := errgroupx.WithContext(ctx).WithRecover()
	group.Go(n.runLoop)
	group.Go(n.runHeartbeats)
	group.Go(n.watchConnection)
	group.Go(func(ctx context.Context) error {
		<-ctx.Done()
		_ = n.client.Close()
		n.loop.Close()
		return nil
	})
	return group.Wait()
}

func (n *nodeService) runLoop(ctx context.Context) error {
	if err := n.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (n *nodeService) runHeartbeats(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(n.opts.HeartbeatPeriod) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := n.loop.Post(func() {
				if err := n.nodes.Heartbeat(n.nodeID, nil); err != nil {
					n.syslog.WithError(err).Warn("skipping a heartbeat")
				}
			}); err != nil {
				return nil
			}
		}
	}
}

func (n *nodeService) watchConnection(_ context.Context) error {
	if err := n.client.Wait(); err != nil {
		return storeConnectionError{cause: err}
	}
	return nil
}

// bootstrap announces the node and subscribes to the task channel. It runs as
// the first callback on the event loop.
func (n *nodeService) bootstrap() {
	host, err := os.Hostname()
	if err != nil {
		host = n.opts.BindIP
	}
	info := state.NodeInfo{
		NodeID:    n.nodeID,
		Host:      host,
		Port:      n.opts.BindPort,
		Resources: n.resources.GetTotalResources().ToMap(),
	}
	if err := n.nodes.Add(info, func([]byte) {
		n.syslog.Info("node announced to the cluster")
	}); err != nil {
		n.syslog.WithError(err).Error("announcing the node")
	}

	if _, err := n.tasks.Subscribe(uuid.Nil, n.schedule); err != nil {
		n.syslog.WithError(err).Error("subscribing to task records")
	}
}

// schedule reacts to one task record from the task channel.
func (n *nodeService) schedule(spec state.TaskSpec) {
	switch spec.State {
	case state.TaskStatePending:
		if n.owns(spec.TaskID) || n.isWaiting(spec.TaskID) {
			return
		}
		n.admit(spec)
	case state.TaskStatePlaced:
		n.placed(spec)
	case state.TaskStateFinished:
		n.finished(spec)
	case state.TaskStateInfeasible:
	default:
		n.syslog.Warnf("ignoring task %s in unknown state %q", spec.TaskID, spec.State)
	}
}

// admit tries to take a pending task. Tasks that fit but cannot run yet wait
// for capacity; tasks that can never fit are only logged.
func (n *nodeService) admit(spec state.TaskSpec) {
	demand := scheduling.ResourceSetFromMap(spec.Resources)
	switch n.resources.CheckResourcesSatisfied(demand) {
	case scheduling.Infeasible:
		n.syslog.Warnf("task %s can never run here: it needs %v of a total %v",
			spec.TaskID, demand, n.resources.GetTotalResources())
	case scheduling.ResourcesUnavailable:
		n.syslog.Debugf("task %s waits for capacity: %v", spec.TaskID, demand)
		n.waiting = append(n.waiting, spec)
	case scheduling.Feasible:
		if !n.resources.Acquire(demand) {
			n.waiting = append(n.waiting, spec)
			return
		}
		n.running[spec.TaskID] = demand

		claim := spec
		claim.State = state.TaskStatePlaced
		claim.NodeID = n.nodeID
		if err := n.tasks.Add(claim, nil); err != nil {
			n.syslog.WithError(err).Errorf("publishing the placement of task %s", spec.TaskID)
			delete(n.running, spec.TaskID)
			n.resources.Release(demand)
			return
		}
		n.claims[spec.TaskID] = true
		n.syslog.Infof("task %s placed with %v", spec.TaskID, demand)
	}
}

// placed resolves competing claims. The task channel delivers records to
// every node in the same order, so the latest claim wins everywhere: on a
// foreign claim we yield unless our own claim is still in flight behind it.
func (n *nodeService) placed(spec state.TaskSpec) {
	if spec.NodeID == n.nodeID {
		delete(n.claims, spec.TaskID)
		return
	}
	n.dropWaiting(spec.TaskID)

	demand, ok := n.running[spec.TaskID]
	if !ok {
		return
	}
	if n.claims[spec.TaskID] {
		return
	}
	n.syslog.Warnf("task %s was claimed again by node %s, yielding", spec.TaskID, spec.NodeID)
	delete(n.running, spec.TaskID)
	n.resources.Release(demand)
	n.retryWaiting()
}

// finished returns a task's resources and records its result object, keyed by
// the task id, as present on this node.
func (n *nodeService) finished(spec state.TaskSpec) {
	n.dropWaiting(spec.TaskID)

	demand, ok := n.running[spec.TaskID]
	if !ok {
		return
	}
	delete(n.running, spec.TaskID)
	delete(n.claims, spec.TaskID)
	if !n.resources.Release(demand) {
		n.syslog.Errorf("the resources of task %s no longer fit the node total", spec.TaskID)
	}

	if err := n.directory.ReportObjectAdded(spec.TaskID, n.nodeID); err != nil {
		n.syslog.WithError(err).Warnf("recording the result object of task %s", spec.TaskID)
	}
	n.retryWaiting()
}

// retryWaiting reconsiders queued tasks after capacity is returned.
func (n *nodeService) retryWaiting() {
	pending := n.waiting
	n.waiting = nil
	for _, spec := range pending {
		n.admit(spec)
	}
}

func (n *nodeService) owns(taskID uuid.UUID) bool {
	_, ok := n.running[taskID]
	return ok
}

func (n *nodeService) isWaiting(taskID uuid.UUID) bool {
	for _, spec := range n.waiting {
		if spec.TaskID == taskID {
			return true
		}
	}
	return false
}

func (n *nodeService) dropWaiting(taskID uuid.UUID) {
	for i, spec := range n.waiting {
		if spec.TaskID == taskID {
			n.waiting = append(n.waiting[:i], n.waiting[i+1:]...)
			return
		}
	}
}

// resourceSummary is the api view of the node's capacity.
type resourceSummary struct {
	NodeID    string             `json:"node_id"`
	Total     map[string]float64 `json:"total"`
	Available map[string]float64 `json:"available"`
	Running   int                `json:"running_tasks"`
	Waiting   int                `json:"waiting_tasks"`
}

// summary reads the scheduling state from the loop goroutine that owns it.
func (n *nodeService) summary(ctx context.Context) (resourceSummary, error) {
	out := make(chan resourceSummary, 1)
	if err := n.loop.Post(func() {
		out <- resourceSummary{
			NodeID:    n.nodeID.String(),
			Total:     n.resources.GetTotalResources().ToMap(),
			Available: n.resources.GetAvailableResources().ToMap(),
			Running:   len(n.running),
			Waiting:   len(n.waiting),
		}
	}); err != nil {
		return resourceSummary{}, err
	}
	select {
	case summary := <-out:
		return summary, nil
	case <-ctx.Done():
		return resourceSummary{}, ctx.Err()
	}
}

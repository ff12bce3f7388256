// Package cluster defines the narrow abstract capability surface the
// Application Master uses to talk to the YARN ResourceManager/NodeManager
// (§6, §9): request/release/launch plus an event callback sink. The real
// RM/NM protocols are out of scope (§1); FakeCluster is the in-memory,
// deterministic implementation used by tests and by standalone runs.
package cluster

import (
	"context"

	"github.com/skein-project/skein/pkg/types"
)

// ResourceRequest asks the cluster for one container matching resources.
type ResourceRequest struct {
	Service   string
	Instance  int
	Resources types.Resources
}

// LaunchContext is everything needed to start a granted container.
type LaunchContext struct {
	Files    map[string]types.File
	Env      map[string]string
	Commands []string
}

// Allocated is a grant the cluster hands back for a pending request.
type Allocated struct {
	ContainerID string
	Service     string
	Instance    int
	Resources   types.Resources
}

// Completed reports a container's terminal outcome.
type Completed struct {
	ContainerID string
	ExitStatus  int
	Preempted   bool
	Diagnostics string
}

// EventSink receives asynchronous events from the cluster interface. All
// methods must be safe to call concurrently and must not block the
// cluster's own event loop for long.
type EventSink interface {
	OnContainersAllocated(ctx context.Context, allocs []Allocated)
	OnContainersCompleted(ctx context.Context, completions []Completed)
	OnShutdownRequest(ctx context.Context)
	OnNodesUpdated(ctx context.Context)
}

// Interface is the abstract cluster capability surface the AM consumes.
// Implementations are assumed to tolerate concurrent calls (§5).
type Interface interface {
	BindSink(sink EventSink)
	Register(ctx context.Context, host string, port int, trackingURL string) error
	Unregister(ctx context.Context, finalStatus types.FinalStatus, diagnostics string) error
	RequestContainers(ctx context.Context, reqs []ResourceRequest) error
	ReleaseContainer(ctx context.Context, containerID string) error
	LaunchContainer(ctx context.Context, containerID string, lc LaunchContext) error
	MaxResources(ctx context.Context) (types.Resources, error)
}

// ClassifyCompletion maps a raw exit report onto a terminal container
// state per §6: exit 0 -> SUCCEEDED; non-zero and not preempted -> FAILED;
// user-killed/preempted -> KILLED.
func ClassifyCompletion(c Completed) types.ContainerState {
	switch {
	case c.Preempted:
		return types.ContainerKilled
	case c.ExitStatus == 0:
		return types.ContainerSucceeded
	default:
		return types.ContainerFailed
	}
}

// Package registry is the Application Master's authoritative per-service
// table of container instances and their state machine (§4.C). All
// mutation happens under a single lock; queries return copied snapshots.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/skein-project/skein/pkg/metrics"
	"github.com/skein-project/skein/pkg/types"
)

// Registry owns every service's runtime state and container list.
type Registry struct {
	mu       sync.Mutex
	services map[string]*types.ServiceRuntime
	byYarnID map[string]yarnBinding
	log      zerolog.Logger
}

type yarnBinding struct {
	service  string
	instance int
}

// New returns an empty registry seeded with one ServiceRuntime per
// service name (desired count taken from each service's initial instances).
func New(log zerolog.Logger, services map[string]types.ServiceSpec) *Registry {
	r := &Registry{
		services: make(map[string]*types.ServiceRuntime, len(services)),
		byYarnID: make(map[string]yarnBinding),
		log:      log,
	}
	for name, svc := range services {
		r.services[name] = &types.ServiceRuntime{Desired: svc.Instances}
	}
	return r
}

// Services returns the known service names.
func (r *Registry) Services() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.services))
	for name := range r.services {
		out = append(out, name)
	}
	return out
}

// RequestInstance creates a new WAITING container record for service and
// returns its instance index. The instance counter is monotonic: a
// restarted or scaled-up instance never reuses a prior index.
func (r *Registry) RequestInstance(service string) (*types.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.services[service]
	if !ok {
		return nil, fmt.Errorf("registry: unknown service %q", service)
	}
	c := &types.Container{
		ServiceName: service,
		Instance:    rt.NextInstance,
		State:       types.ContainerWaiting,
	}
	rt.NextInstance++
	rt.Containers = append(rt.Containers, c)
	metrics.ContainersTotal.WithLabelValues(string(types.ContainerWaiting)).Inc()
	r.log.Debug().Str("service", service).Int("instance", c.Instance).Msg("instance requested")
	return c, nil
}

// SetEligible marks service eligible or not for the scheduler (§4.D).
func (r *Registry) SetEligible(service string, eligible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rt, ok := r.services[service]; ok {
		rt.Eligible = eligible
	}
}

// Eligible reports whether service is currently launch-eligible.
func (r *Registry) Eligible(service string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.services[service]
	return ok && rt.Eligible
}

// Waiting returns every WAITING container of service, in insertion order.
func (r *Registry) Waiting(service string) []*types.Container {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.services[service]
	if !ok {
		return nil
	}
	var out []*types.Container
	for _, c := range rt.Containers {
		if c.State == types.ContainerWaiting {
			out = append(out, c)
		}
	}
	return out
}

// transition moves a container from one state to another if it is not
// already terminal; illegal/no-op transitions against a terminal instance
// are logged and ignored rather than silently coerced (§9).
func (r *Registry) transition(service string, instance int, to types.ContainerState, mutate func(*types.Container)) (*types.Container, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.services[service]
	if !ok {
		return nil, false
	}
	for _, c := range rt.Containers {
		if c.Instance != instance {
			continue
		}
		if c.State.Terminal() {
			r.log.Warn().Str("service", service).Int("instance", instance).
				Str("state", string(c.State)).Str("event", string(to)).
				Msg("ignoring event targeting terminal container")
			return c, false
		}
		from := c.State
		c.State = to
		if mutate != nil {
			mutate(c)
		}
		metrics.ContainersTotal.WithLabelValues(string(from)).Dec()
		metrics.ContainersTotal.WithLabelValues(string(to)).Inc()
		return c, true
	}
	return nil, false
}

// BindAllocation moves a WAITING instance to REQUESTED, recording the
// cluster-assigned container id.
func (r *Registry) BindAllocation(service string, instance int, yarnContainerID string) (*types.Container, bool) {
	c, ok := r.transition(service, instance, types.ContainerRequested, func(c *types.Container) {
		c.YarnContainerID = yarnContainerID
	})
	if ok {
		r.mu.Lock()
		r.byYarnID[yarnContainerID] = yarnBinding{service: service, instance: instance}
		r.mu.Unlock()
	}
	return c, ok
}

// OnLaunched moves a REQUESTED instance to RUNNING.
func (r *Registry) OnLaunched(service string, instance int) (*types.Container, bool) {
	return r.transition(service, instance, types.ContainerRunning, func(c *types.Container) {
		c.StartTime = time.Now()
	})
}

// OnCompleted moves a non-terminal instance to its terminal state.
func (r *Registry) OnCompleted(service string, instance int, final types.ContainerState, exitStatus int, diagnostics string) (*types.Container, bool) {
	return r.transition(service, instance, final, func(c *types.Container) {
		c.FinishTime = time.Now()
		c.ExitStatus = exitStatus
		c.Diagnostics = diagnostics
	})
}

// Kill transitions any non-terminal instance to KILLED. It is idempotent:
// calling it on an already-terminal instance is a no-op, not an error.
func (r *Registry) Kill(service string, instance int) (*types.Container, bool) {
	return r.transition(service, instance, types.ContainerKilled, func(c *types.Container) {
		c.FinishTime = time.Now()
	})
}

// RemoveWaiting deletes a WAITING instance outright (used by scale-down,
// which removes WAITING instances without any cluster traffic before
// killing RUNNING/REQUESTED ones).
func (r *Registry) RemoveWaiting(service string, instance int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.services[service]
	if !ok {
		return false
	}
	for i, c := range rt.Containers {
		if c.Instance == instance && c.State == types.ContainerWaiting {
			rt.Containers = append(rt.Containers[:i], rt.Containers[i+1:]...)
			metrics.ContainersTotal.WithLabelValues(string(types.ContainerWaiting)).Dec()
			return true
		}
	}
	return false
}

// Get returns a copy of one container record by (service, instance).
func (r *Registry) Get(service string, instance int) (types.Container, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.services[service]
	if !ok {
		return types.Container{}, false
	}
	for _, c := range rt.Containers {
		if c.Instance == instance {
			return *c, true
		}
	}
	return types.Container{}, false
}

// Lookup resolves a cluster container id to its (service, instance).
func (r *Registry) Lookup(yarnContainerID string) (string, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byYarnID[yarnContainerID]
	return b.service, b.instance, ok
}

// GetContainers returns a filtered, copied snapshot of container records.
// A nil/empty filter matches everything in that dimension.
func (r *Registry) GetContainers(states []types.ContainerState, services []string) []types.Container {
	stateSet := toSet(states)
	svcSet := toSet(services)

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []types.Container
	for name, rt := range r.services {
		if len(svcSet) > 0 && !svcSet[name] {
			continue
		}
		for _, c := range rt.Containers {
			if len(stateSet) > 0 && !stateSet[string(c.State)] {
				continue
			}
			out = append(out, *c)
		}
	}
	return out
}

// NonTerminalCount returns the number of non-terminal instances of service.
func (r *Registry) NonTerminalCount(service string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.services[service]
	if !ok {
		return 0
	}
	n := 0
	for _, c := range rt.Containers {
		if !c.State.Terminal() {
			n++
		}
	}
	return n
}

// Runtime returns a copy of a service's runtime bookkeeping.
func (r *Registry) Runtime(service string) (types.ServiceRuntime, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.services[service]
	if !ok {
		return types.ServiceRuntime{}, false
	}
	cp := *rt
	cp.Containers = make([]*types.Container, len(rt.Containers))
	for i, c := range rt.Containers {
		cc := *c
		cp.Containers[i] = &cc
	}
	return cp, true
}

// SetDesired updates a service's desired instance count (used by scale).
func (r *Registry) SetDesired(service string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rt, ok := r.services[service]; ok {
		rt.Desired = n
	}
}

// HighestIndexedNonTerminal returns, in descending instance-index order,
// the non-terminal containers of service -- the order scale-down kills in.
func (r *Registry) HighestIndexedNonTerminal(service string) []*types.Container {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.services[service]
	if !ok {
		return nil
	}
	var out []*types.Container
	for _, c := range rt.Containers {
		if !c.State.Terminal() {
			out = append(out, c)
		}
	}
	sortDesc(out)
	return out
}

func sortDesc(cs []*types.Container) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j-1].Instance < cs[j].Instance; j-- {
			cs[j-1], cs[j] = cs[j], cs[j-1]
		}
	}
}

// MarkFailed records that service exhausted its restart budget.
func (r *Registry) MarkFailed(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rt, ok := r.services[service]; ok {
		rt.Failed = true
	}
}

// IncrementFailureCount bumps and returns service's cumulative FAILED count.
func (r *Registry) IncrementFailureCount(service string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.services[service]
	if !ok {
		return 0
	}
	rt.FailureCount++
	return rt.FailureCount
}

// AllTerminalOrDone reports whether every desired instance of service has
// reached SUCCEEDED and no further instances are pending.
func (r *Registry) AllTerminalOrDone(service string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.services[service]
	if !ok {
		return true
	}
	if rt.Failed {
		return false
	}
	succeeded := 0
	for _, c := range rt.Containers {
		switch c.State {
		case types.ContainerSucceeded:
			succeeded++
		case types.ContainerFailed:
			return false
		}
	}
	return succeeded >= rt.Desired
}

func toSet[T ~string](items []T) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[string(it)] = true
	}
	return set
}

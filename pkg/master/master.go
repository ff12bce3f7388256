// Package master bundles the Application Master's owned state -- spec,
// registry, key-value store, scheduler, and YARN reconciler -- into a
// single object passed by reference to RPC handlers (§9: "avoid
// process-wide singletons so tests can spin up many AMs in-process").
package master

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/skein-project/skein/pkg/cluster"
	"github.com/skein-project/skein/pkg/events"
	"github.com/skein-project/skein/pkg/kv"
	"github.com/skein-project/skein/pkg/metrics"
	"github.com/skein-project/skein/pkg/registry"
	"github.com/skein-project/skein/pkg/restart"
	"github.com/skein-project/skein/pkg/scheduler"
	"github.com/skein-project/skein/pkg/types"
)

const monitorInterval = 250 * time.Millisecond

// Master is the single owned object bundling an application's entire
// runtime. It holds one coarse-grained lock over the composite
// operations (scale, kill, shutdown) described in §5; the registry and
// kv store carry their own finer-grained locks for their own operations.
type Master struct {
	mu sync.Mutex

	ID   string
	Spec types.ApplicationSpec

	Registry    *registry.Registry
	KV          *kv.Store
	Scheduler   *scheduler.Scheduler
	Reconciler  *cluster.Reconciler
	RestartPol  *restart.Policy
	ClusterIf   cluster.Interface
	Events      *events.Broker
	log         zerolog.Logger

	host, trackingURL string
	port              int
	startTime         time.Time
	finishTime        time.Time
	state             types.ApplicationState
	finalStatus       types.FinalStatus
	diagnostics       string
	shuttingDown      bool
}

// New constructs a Master for a validated ApplicationSpec. The cluster
// interface is injected so tests can supply a FakeCluster or a real one.
func New(id string, spec types.ApplicationSpec, clusterIf cluster.Interface, log zerolog.Logger) *Master {
	broker := events.NewBroker()
	reg := registry.New(log.With().Str("component", "registry").Logger(), spec.Services)
	store := kv.New(log.With().Str("component", "kv").Logger())
	restartPol := restart.New(reg, broker, log.With().Str("component", "restart").Logger())
	reconciler := cluster.NewReconciler(clusterIf, reg, restartPol, spec, log.With().Str("component", "reconciler").Logger())
	sched := scheduler.New(spec, reg, store, reconciler, broker, log.With().Str("component", "scheduler").Logger())

	return &Master{
		ID:         id,
		Spec:       spec,
		Registry:   reg,
		KV:         store,
		Scheduler:  sched,
		Reconciler: reconciler,
		RestartPol: restartPol,
		ClusterIf:  clusterIf,
		Events:     broker,
		log:        log.With().Str("component", "master").Str("application_id", id).Logger(),
		state:      types.ApplicationNew,
	}
}

// Start registers with the cluster interface, seeds every service's
// initial desired instances, and starts the scheduler and reconciler
// loops.
func (m *Master) Start(ctx context.Context, host string, port int, trackingURL string) error {
	m.mu.Lock()
	m.host, m.port, m.trackingURL = host, port, trackingURL
	m.startTime = time.Now()
	m.state = types.ApplicationRunning
	m.mu.Unlock()

	m.Events.Start()
	m.Reconciler.SetAddress(host, port)
	m.ClusterIf.BindSink(m)

	if err := m.ClusterIf.Register(ctx, host, port, trackingURL); err != nil {
		return fmt.Errorf("master: register with cluster: %w", err)
	}

	for name, svc := range m.Spec.Services {
		for i := 0; i < svc.Instances; i++ {
			if _, err := m.Registry.RequestInstance(name); err != nil {
				return fmt.Errorf("master: seed instance for %q: %w", name, err)
			}
		}
	}

	m.Scheduler.Start()
	m.Reconciler.Start()
	// The monitor loop outlives the Start call (and whatever RPC context
	// carried it in), so it gets its own background context rather than
	// one tied to the caller's request.
	go m.monitor(context.Background())

	m.log.Info().Str("host", host).Int("port", port).Msg("application master started")
	return nil
}

func (m *Master) monitor(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for range ticker.C {
		if m.isShuttingDown() {
			return
		}
		m.checkTermination(ctx)
	}
}

// checkTermination applies §4.F's application termination rules: any
// permanently-failed service fails the application; every service
// reaching "done" succeeds it.
func (m *Master) checkTermination(ctx context.Context) {
	allDone := true
	for name := range m.Spec.Services {
		rt, ok := m.Registry.Runtime(name)
		if !ok {
			continue
		}
		if rt.Failed {
			m.mu.Lock()
			_ = m.shutdownLocked(ctx, types.FinalFailed, types.Diagnostics{Service: name, Detail: "restart budget exhausted"}.String())
			m.mu.Unlock()
			return
		}
		if !m.Registry.AllTerminalOrDone(name) {
			allDone = false
		}
	}
	if allDone {
		m.mu.Lock()
		_ = m.shutdownLocked(ctx, types.FinalSucceeded, "")
		m.mu.Unlock()
	}
}

// --- cluster.EventSink ---

func (m *Master) OnContainersAllocated(ctx context.Context, allocs []cluster.Allocated) {
	m.Reconciler.OnContainersAllocated(ctx, allocs)
}

func (m *Master) OnContainersCompleted(ctx context.Context, completions []cluster.Completed) {
	m.Reconciler.OnContainersCompleted(ctx, completions)
	m.checkTermination(ctx)
}

func (m *Master) OnShutdownRequest(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.shutdownLocked(ctx, types.FinalKilled, "cluster requested shutdown")
}

func (m *Master) OnNodesUpdated(ctx context.Context) {}

// --- RPC-facing operations (§4.G) ---

// Scale sets a service's new desired instance count. Increasing creates
// new WAITING instances, enqueued immediately if the service is already
// eligible. Decreasing removes WAITING instances first (no cluster
// traffic), then kills the highest-indexed non-terminal instances until
// the count matches.
func (m *Master) Scale(service string, instances int) error {
	if instances < 0 {
		return fmt.Errorf("%w: instances must be >= 0", ErrInvalidArgument)
	}
	if _, ok := m.Spec.Services[service]; !ok {
		return fmt.Errorf("%w: service %q", ErrNotFound, service)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shuttingDown {
		return fmt.Errorf("%w: shutdown in progress", ErrFailedPrecondition)
	}

	rt, _ := m.Registry.Runtime(service)
	current := rt.Desired
	m.Registry.SetDesired(service, instances)

	switch {
	case instances > current:
		eligible := m.Registry.Eligible(service)
		for i := 0; i < instances-current; i++ {
			c, err := m.Registry.RequestInstance(service)
			if err != nil {
				return err
			}
			if eligible {
				m.Reconciler.Enqueue(service, c)
			}
		}

	case instances < current:
		toRemove := current - instances
		nonTerminal := m.Registry.HighestIndexedNonTerminal(service)
		for _, c := range nonTerminal {
			if toRemove == 0 {
				break
			}
			if c.State == types.ContainerWaiting && m.Registry.RemoveWaiting(service, c.Instance) {
				toRemove--
			}
		}
		for _, c := range nonTerminal {
			if toRemove == 0 {
				break
			}
			if c.State == types.ContainerWaiting {
				continue
			}
			if err := m.killInstanceLocked(service, c.Instance); err == nil {
				toRemove--
			}
		}
	}
	return nil
}

// KillContainer terminates a single instance; it does not count as a
// restart-budget failure and is idempotent on an already-terminal
// instance.
func (m *Master) KillContainer(service string, instance int) error {
	if _, ok := m.Spec.Services[service]; !ok {
		return fmt.Errorf("%w: service %q", ErrNotFound, service)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killInstanceLocked(service, instance)
}

func (m *Master) killInstanceLocked(service string, instance int) error {
	c, ok := m.Registry.Get(service, instance)
	if !ok {
		return fmt.Errorf("%w: instance %d of service %q", ErrNotFound, instance, service)
	}
	if c.State.Terminal() {
		return nil
	}
	if c.State == types.ContainerWaiting {
		m.Registry.RemoveWaiting(service, instance)
		return nil
	}
	if c.YarnContainerID != "" {
		if err := m.ClusterIf.ReleaseContainer(context.Background(), c.YarnContainerID); err != nil {
			m.log.Error().Err(err).Str("service", service).Int("instance", instance).Msg("release container failed")
		}
	}
	m.Registry.Kill(service, instance)
	return nil
}

// GetContainers returns a filtered snapshot of container records.
func (m *Master) GetContainers(states []types.ContainerState, services []string) []types.Container {
	return m.Registry.GetContainers(states, services)
}

// GetApplicationSpec returns the immutable spec.
func (m *Master) GetApplicationSpec() types.ApplicationSpec { return m.Spec }

// GetService returns a copy of one service's runtime state.
func (m *Master) GetService(name string) (types.ServiceRuntime, error) {
	rt, ok := m.Registry.Runtime(name)
	if !ok {
		return types.ServiceRuntime{}, fmt.Errorf("%w: service %q", ErrNotFound, name)
	}
	return rt, nil
}

// Shutdown initiates graceful termination: stop accepting new allocation
// requests, kill all non-terminal containers, unregister with the
// cluster. Calling it twice leaves final_status at whatever it was first
// set to.
func (m *Master) Shutdown(ctx context.Context, finalStatus types.FinalStatus, diagnostics string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdownLocked(ctx, finalStatus, diagnostics)
}

func (m *Master) shutdownLocked(ctx context.Context, finalStatus types.FinalStatus, diagnostics string) error {
	if m.shuttingDown {
		return nil
	}
	m.shuttingDown = true
	m.finalStatus = finalStatus
	m.diagnostics = diagnostics
	m.finishTime = time.Now()

	switch finalStatus {
	case types.FinalSucceeded:
		m.state = types.ApplicationFinished
	case types.FinalFailed:
		m.state = types.ApplicationFailed
	default:
		m.state = types.ApplicationKilled
	}

	m.Scheduler.Stop()
	m.Reconciler.Stop()

	for name := range m.Spec.Services {
		for _, c := range m.Registry.HighestIndexedNonTerminal(name) {
			_ = m.killInstanceLocked(name, c.Instance)
		}
	}

	if err := m.ClusterIf.Unregister(ctx, finalStatus, diagnostics); err != nil {
		m.log.Error().Err(err).Msg("unregister from cluster failed")
	}
	m.Events.Stop()

	m.log.Info().Str("final_status", string(finalStatus)).Str("diagnostics", diagnostics).Msg("application master shut down")
	return nil
}

func (m *Master) isShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shuttingDown
}

// Report projects the AM's state into an ApplicationReport (§3).
func (m *Master) Report() types.ApplicationReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total, finished int
	for name := range m.Spec.Services {
		rt, ok := m.Registry.Runtime(name)
		if !ok {
			continue
		}
		total += rt.Desired
		for _, c := range rt.Containers {
			if c.State == types.ContainerSucceeded {
				finished++
			}
		}
	}
	progress := 0.0
	if total > 0 {
		progress = float64(finished) / float64(total)
	}

	return types.ApplicationReport{
		ID:          m.ID,
		Name:        m.Spec.Name,
		Queue:       m.Spec.Queue,
		Tags:        m.Spec.Tags,
		Host:        m.host,
		Port:        m.port,
		TrackingURL: m.trackingURL,
		State:       m.state,
		FinalStatus: m.finalStatus,
		Progress:    progress,
		Diagnostics: m.diagnostics,
		StartTime:   m.startTime,
		FinishTime:  m.finishTime,
	}
}

func init() {
	// Ensure ContainersTotal and friends have a zero sample for every
	// known state so dashboards don't show gaps before the first
	// transition of each kind.
	for _, s := range []types.ContainerState{
		types.ContainerWaiting, types.ContainerRequested, types.ContainerRunning,
		types.ContainerSucceeded, types.ContainerFailed, types.ContainerKilled,
	} {
		metrics.ContainersTotal.WithLabelValues(string(s)).Add(0)
	}
}

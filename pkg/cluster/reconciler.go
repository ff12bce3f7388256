package cluster

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/skein-project/skein/pkg/metrics"
	"github.com/skein-project/skein/pkg/registry"
	"github.com/skein-project/skein/pkg/restart"
	"github.com/skein-project/skein/pkg/types"
)

const reconcileInterval = 200 * time.Millisecond

type queueItem struct {
	service  string
	instance int
}

// Reconciler is the Application Master's YARN reconciler (§4.E): it
// drives allocation requests for queued (service, instance) pairs,
// builds launch contexts for granted allocations, and routes completion
// events to the registry and then the restart policy.
type Reconciler struct {
	mu      sync.Mutex
	queue   []queueItem
	cluster Interface
	reg     *registry.Registry
	restart *restart.Policy
	spec    types.ApplicationSpec
	amHost  string
	amPort  int
	log     zerolog.Logger
	stopCh  chan struct{}
}

// NewReconciler returns a reconciler bound to cluster and the given
// ApplicationSpec (for per-service resources/files/env/commands).
func NewReconciler(cl Interface, reg *registry.Registry, rp *restart.Policy, spec types.ApplicationSpec, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		cluster: cl,
		reg:     reg,
		restart: rp,
		spec:    spec,
		log:     log,
		stopCh:  make(chan struct{}),
	}
}

// SetAddress records the AM's own host:port, injected into containers as
// SKEIN_APPMASTER_ADDRESS (§4.E, §6).
func (r *Reconciler) SetAddress(host string, port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.amHost, r.amPort = host, port
}

// Enqueue hands a (service, instance) pair needing a container to the
// reconciler's work queue. Implements types.Enqueuer.
func (r *Reconciler) Enqueue(service string, c *types.Container) {
	r.mu.Lock()
	r.queue = append(r.queue, queueItem{service: service, instance: c.Instance})
	r.mu.Unlock()
}

// Start begins draining the work queue on a ticker.
func (r *Reconciler) Start() { go r.run() }

// Stop halts the drain loop.
func (r *Reconciler) Stop() { close(r.stopCh) }

func (r *Reconciler) run() {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.drain()
		case <-r.stopCh:
			return
		}
	}
}

// drain requests containers for every queued item. Per-service the
// queue is FIFO over instance index (§4.E ordering guarantee); across
// services the cluster's own grant order is honored, Skein does not
// reorder.
func (r *Reconciler) drain() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	r.mu.Lock()
	items := r.queue
	r.queue = nil
	r.mu.Unlock()
	if len(items) == 0 {
		return
	}

	reqs := make([]ResourceRequest, 0, len(items))
	for _, it := range items {
		svcSpec, ok := r.spec.Services[it.service]
		if !ok {
			continue
		}
		reqs = append(reqs, ResourceRequest{
			Service:   it.service,
			Instance:  it.instance,
			Resources: svcSpec.Resources,
		})
		metrics.AllocationRequestsTotal.WithLabelValues(it.service).Inc()
	}

	if err := r.cluster.RequestContainers(context.Background(), reqs); err != nil {
		r.log.Error().Err(err).Msg("request containers failed, requeueing")
		r.mu.Lock()
		r.queue = append(items, r.queue...)
		r.mu.Unlock()
	}
}

// OnContainersAllocated binds each grant to its registry instance and
// launches it with a constructed LaunchContext. Implements EventSink.
func (r *Reconciler) OnContainersAllocated(ctx context.Context, allocs []Allocated) {
	for _, a := range allocs {
		if _, ok := r.reg.BindAllocation(a.Service, a.Instance, a.ContainerID); !ok {
			continue
		}

		svcSpec, ok := r.spec.Services[a.Service]
		if !ok {
			continue
		}

		r.mu.Lock()
		host, port := r.amHost, r.amPort
		r.mu.Unlock()

		env := make(map[string]string, len(svcSpec.Env)+4)
		for k, v := range svcSpec.Env {
			env[k] = v
		}
		env["SKEIN_APPMASTER_ADDRESS"] = fmt.Sprintf("%s:%d", host, port)
		env["SKEIN_SERVICE"] = a.Service
		env["SKEIN_INSTANCE"] = strconv.Itoa(a.Instance)
		env["SKEIN_CONTAINER_ID"] = a.ContainerID

		lc := LaunchContext{
			Files:    svcSpec.Files,
			Env:      env,
			Commands: svcSpec.Commands,
		}

		if err := r.cluster.LaunchContainer(ctx, a.ContainerID, lc); err != nil {
			r.log.Error().Err(err).Str("service", a.Service).Int("instance", a.Instance).Msg("launch failed")
			continue
		}
		r.reg.OnLaunched(a.Service, a.Instance)
		metrics.ContainersScheduled.Inc()
	}
}

// OnContainersCompleted resolves each completion to its container record,
// classifies it, and routes it to the restart policy. Implements
// EventSink.
func (r *Reconciler) OnContainersCompleted(ctx context.Context, completions []Completed) {
	for _, comp := range completions {
		service, instance, ok := r.reg.Lookup(comp.ContainerID)
		if !ok {
			r.log.Warn().Str("container_id", comp.ContainerID).Msg("completion for unknown container")
			continue
		}

		final := ClassifyCompletion(comp)
		container, transitioned := r.reg.OnCompleted(service, instance, final, comp.ExitStatus, comp.Diagnostics)
		if !transitioned {
			continue
		}

		svcSpec, ok := r.spec.Services[service]
		if !ok {
			continue
		}
		r.restart.OnTerminal(svcSpec, container, r)
	}
}

// OnShutdownRequest implements EventSink; the caller (Master) decides
// what to do about it.
func (r *Reconciler) OnShutdownRequest(ctx context.Context) {
	r.log.Warn().Msg("cluster requested shutdown")
}

// OnNodesUpdated implements EventSink.
func (r *Reconciler) OnNodesUpdated(ctx context.Context) {}

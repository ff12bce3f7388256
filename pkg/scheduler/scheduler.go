// Package scheduler implements the Application Master's dependency
// scheduler (§4.D): it decides when a service becomes launch-eligible
// based on dependency-readiness signals published to the key-value
// store, and hands newly-eligible services' WAITING instances to the
// YARN reconciler.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/skein-project/skein/pkg/events"
	"github.com/skein-project/skein/pkg/kv"
	"github.com/skein-project/skein/pkg/metrics"
	"github.com/skein-project/skein/pkg/registry"
	"github.com/skein-project/skein/pkg/types"
)

const defaultInterval = 200 * time.Millisecond

// Scheduler periodically checks each not-yet-eligible service's
// dependencies against the key-value store's readiness keys.
type Scheduler struct {
	spec     types.ApplicationSpec
	reg      *registry.Registry
	kvStore  *kv.Store
	enq      types.Enqueuer
	broker   *events.Broker
	log      zerolog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// New returns a scheduler for spec's services.
func New(spec types.ApplicationSpec, reg *registry.Registry, kvStore *kv.Store, enq types.Enqueuer, broker *events.Broker, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		spec:     spec,
		reg:      reg,
		kvStore:  kvStore,
		enq:      enq,
		broker:   broker,
		log:      log,
		interval: defaultInterval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs one immediate eligibility pass (so dependency-free services
// become eligible without waiting for the first tick), then begins the
// periodic evaluation loop.
func (s *Scheduler) Start() {
	s.evaluate()
	go s.run()
}

// Stop halts the evaluation loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evaluate()
		case <-s.stopCh:
			return
		}
	}
}

// evaluate checks every not-yet-eligible service and promotes any whose
// dependencies are all satisfied.
func (s *Scheduler) evaluate() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingLatency)

	snapshot := s.kvStore.GetAll()

	eligibleCount := 0
	for name, svc := range s.spec.Services {
		if s.reg.Eligible(name) {
			eligibleCount++
			continue
		}
		if !s.dependenciesSatisfied(svc.Depends, snapshot) {
			continue
		}
		s.promote(name)
		eligibleCount++
	}
	metrics.ServicesEligibleTotal.Set(float64(eligibleCount))
}

func (s *Scheduler) dependenciesSatisfied(depends []string, snapshot map[string]string) bool {
	for _, dep := range depends {
		if _, ok := snapshot[dep]; !ok {
			return false
		}
	}
	return true
}

// promote marks name launch-eligible and hands every currently-WAITING
// instance of name to the reconciler, in insertion order. Instances added
// later (restarts, scale-up) are enqueued immediately elsewhere because
// the service is already eligible by then.
func (s *Scheduler) promote(name string) {
	s.reg.SetEligible(name, true)
	for _, c := range s.reg.Waiting(name) {
		s.enq.Enqueue(name, c)
	}
	s.log.Info().Str("service", name).Msg("service became launch-eligible")
	s.broker.Publish(&events.Event{
		Type:     events.EventServiceEligible,
		Message:  "service became launch-eligible",
		Metadata: map[string]string{"service": name},
	})
}

// Rescan offers an on-demand evaluation pass, used by the Master after a
// direct kv.Set outside the normal poll cadence (e.g. from an RPC) so
// waiting services don't sit for a full tick before becoming eligible.
func (s *Scheduler) Rescan(ctx context.Context) {
	s.evaluate()
}

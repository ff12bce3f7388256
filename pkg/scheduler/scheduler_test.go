package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skein-project/skein/pkg/events"
	"github.com/skein-project/skein/pkg/kv"
	"github.com/skein-project/skein/pkg/registry"
	"github.com/skein-project/skein/pkg/types"
)

type recordingEnqueuer struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingEnqueuer) Enqueue(service string, c *types.Container) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, service)
}

func (r *recordingEnqueuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func buildScheduler(t *testing.T, app types.ApplicationSpec) (*Scheduler, *registry.Registry, *kv.Store, *recordingEnqueuer) {
	t.Helper()
	reg := registry.New(zerolog.Nop(), app.Services)
	store := kv.New(zerolog.Nop())
	enq := &recordingEnqueuer{}
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	s := New(app, reg, store, enq, broker, zerolog.Nop())
	return s, reg, store, enq
}

func TestEvaluate_DependencyFreeServiceBecomesEligibleImmediately(t *testing.T) {
	app := types.ApplicationSpec{
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 1, Resources: types.Resources{MemoryMiB: 1, VCores: 1}, Commands: []string{"x"}},
		},
	}
	s, reg, _, enq := buildScheduler(t, app)
	reg.RequestInstance("web")

	s.evaluate()

	assert.True(t, reg.Eligible("web"))
	assert.Equal(t, 1, enq.count())
}

func TestEvaluate_DependentServiceWaitsForKey(t *testing.T) {
	app := types.ApplicationSpec{
		Services: map[string]types.ServiceSpec{
			"producer": {Instances: 1, Resources: types.Resources{MemoryMiB: 1, VCores: 1}, Commands: []string{"x"}},
			"consumer": {Instances: 1, Resources: types.Resources{MemoryMiB: 1, VCores: 1}, Commands: []string{"x"}, Depends: []string{"producer"}},
		},
	}
	s, reg, store, enq := buildScheduler(t, app)
	reg.RequestInstance("producer")
	reg.RequestInstance("consumer")

	s.evaluate()
	assert.True(t, reg.Eligible("producer"))
	assert.False(t, reg.Eligible("consumer"), "consumer depends on an unset key")
	assert.Equal(t, 1, enq.count())

	store.Set("producer", "ready")
	s.evaluate()
	assert.True(t, reg.Eligible("consumer"))
	assert.Equal(t, 2, enq.count())
}

func TestEvaluate_MultipleDependenciesAllMustBeSatisfied(t *testing.T) {
	app := types.ApplicationSpec{
		Services: map[string]types.ServiceSpec{
			"a": {Instances: 1, Resources: types.Resources{MemoryMiB: 1, VCores: 1}, Commands: []string{"x"}},
			"b": {Instances: 1, Resources: types.Resources{MemoryMiB: 1, VCores: 1}, Commands: []string{"x"}},
			"c": {Instances: 1, Resources: types.Resources{MemoryMiB: 1, VCores: 1}, Commands: []string{"x"}, Depends: []string{"a", "b"}},
		},
	}
	s, reg, store, _ := buildScheduler(t, app)
	reg.RequestInstance("c")

	store.Set("a", "ready")
	s.evaluate()
	assert.False(t, reg.Eligible("c"))

	store.Set("b", "ready")
	s.evaluate()
	assert.True(t, reg.Eligible("c"))
}

func TestEvaluate_AlreadyEligibleServiceIsNotReenqueued(t *testing.T) {
	app := types.ApplicationSpec{
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 1, Resources: types.Resources{MemoryMiB: 1, VCores: 1}, Commands: []string{"x"}},
		},
	}
	s, reg, _, enq := buildScheduler(t, app)
	reg.RequestInstance("web")

	s.evaluate()
	s.evaluate()
	s.evaluate()

	assert.Equal(t, 1, enq.count(), "promote must only enqueue WAITING instances once, on the eligibility transition")
}

func TestStartStop_RunsPeriodicEvaluation(t *testing.T) {
	app := types.ApplicationSpec{
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 1, Resources: types.Resources{MemoryMiB: 1, VCores: 1}, Commands: []string{"x"}},
		},
	}
	s, reg, _, _ := buildScheduler(t, app)
	s.interval = 10 * time.Millisecond
	reg.RequestInstance("web")

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return reg.Eligible("web")
	}, time.Second, 5*time.Millisecond)
}

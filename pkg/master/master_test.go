package master

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skein-project/skein/pkg/cluster"
	"github.com/skein-project/skein/pkg/types"
)

func newTestMaster(t *testing.T, app types.ApplicationSpec) (*Master, *cluster.FakeCluster) {
	t.Helper()
	fc := cluster.NewFakeCluster(zerolog.Nop(), types.Resources{MemoryMiB: 4096, VCores: 8})
	m := New("test-app", app, fc, zerolog.Nop())
	return m, fc
}

func waitForState(t *testing.T, m *Master, service string, instance int, state types.ContainerState) {
	t.Helper()
	require.Eventually(t, func() bool {
		c, ok := m.Registry.Get(service, instance)
		return ok && c.State == state
	}, 2*time.Second, 10*time.Millisecond, "service %s instance %d never reached %s", service, instance, state)
}

// Single service, one instance, succeeds -- §8 scenario 1.
func TestMaster_SingleServiceOneInstanceSucceeds(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "single",
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 1, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"exit 0"}},
		},
	}
	m, _ := newTestMaster(t, app)
	require.NoError(t, m.Start(context.Background(), "127.0.0.1", 0, ""))

	waitForState(t, m, "web", 0, types.ContainerSucceeded)
	require.Eventually(t, func() bool {
		return m.Report().State == types.ApplicationFinished
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, types.FinalSucceeded, m.Report().FinalStatus)
}

// Dependency rendezvous -- §8 scenario 2: "b" depends on "a" and only
// becomes eligible once "a"'s container writes its own readiness key.
func TestMaster_DependencyRendezvous(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "rendezvous",
		Services: map[string]types.ServiceSpec{
			"a": {Instances: 1, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"exit 0"}},
			"b": {Instances: 1, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"exit 0"}, Depends: []string{"a"}},
		},
	}
	m, _ := newTestMaster(t, app)
	require.NoError(t, m.Start(context.Background(), "127.0.0.1", 0, ""))

	// "b" must stay WAITING until "a" publishes its readiness key.
	time.Sleep(50 * time.Millisecond)
	bContainer, ok := m.Registry.Get("b", 0)
	require.True(t, ok)
	assert.Equal(t, types.ContainerWaiting, bContainer.State)

	m.KV.Set("a", "ready")

	waitForState(t, m, "b", 0, types.ContainerSucceeded)
}

// Bounded restart -- §8 scenario 3: a service with max_restarts=1 gets
// exactly one fresh instance after a failure, then fails permanently on
// the second failure.
func TestMaster_BoundedRestart(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "restart",
		Services: map[string]types.ServiceSpec{
			"flaky": {Instances: 1, MaxRestarts: 1, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"exit 1"}},
		},
	}
	m, _ := newTestMaster(t, app)
	require.NoError(t, m.Start(context.Background(), "127.0.0.1", 0, ""))

	require.Eventually(t, func() bool {
		return m.Report().State == types.ApplicationFailed
	}, 3*time.Second, 10*time.Millisecond)

	containers := m.Registry.GetContainers(nil, []string{"flaky"})
	assert.Len(t, containers, 2, "one original instance plus one restart")
	for _, c := range containers {
		assert.Equal(t, types.ContainerFailed, c.State)
	}
}

// Scale up/down -- §8 scenario 4.
func TestMaster_ScaleUpThenDown(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "scaling",
		Services: map[string]types.ServiceSpec{
			"worker": {Instances: 1, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"sleep 5"}},
		},
	}
	m, _ := newTestMaster(t, app)
	require.NoError(t, m.Start(context.Background(), "127.0.0.1", 0, ""))

	waitForState(t, m, "worker", 0, types.ContainerRunning)

	require.NoError(t, m.Scale("worker", 3))
	require.Eventually(t, func() bool {
		return m.Registry.NonTerminalCount("worker") == 3
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Scale("worker", 1))
	require.Eventually(t, func() bool {
		return m.Registry.NonTerminalCount("worker") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMaster_ScaleDownRemovesWaitingInstances(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "scaling-down",
		Services: map[string]types.ServiceSpec{
			"worker": {
				Instances: 1,
				Resources: types.Resources{MemoryMiB: 128, VCores: 1},
				Commands:  []string{"sleep 5"},
				Depends:   []string{"gate"},
			},
			"gate": {Instances: 1, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"sleep 5"}},
		},
	}
	m, _ := newTestMaster(t, app)
	require.NoError(t, m.Start(context.Background(), "127.0.0.1", 0, ""))

	// "worker" never becomes eligible (gate's readiness key is never set),
	// so scaling it up only creates WAITING instances.
	require.NoError(t, m.Scale("worker", 3))
	require.Eventually(t, func() bool {
		return m.Registry.NonTerminalCount("worker") == 3
	}, time.Second, 10*time.Millisecond)
	for _, c := range m.Registry.GetContainers(nil, []string{"worker"}) {
		require.Equal(t, types.ContainerWaiting, c.State)
	}

	require.NoError(t, m.Scale("worker", 1))
	assert.Equal(t, 1, m.Registry.NonTerminalCount("worker"))
}

func TestMaster_ScaleRejectsNegativeInstances(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "neg",
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 1, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"exit 0"}},
		},
	}
	m, _ := newTestMaster(t, app)
	require.NoError(t, m.Start(context.Background(), "127.0.0.1", 0, ""))
	assert.ErrorIs(t, m.Scale("web", -1), ErrInvalidArgument)
}

func TestMaster_ScaleUnknownServiceNotFound(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "unknown-svc",
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 0, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"exit 0"}},
		},
	}
	m, _ := newTestMaster(t, app)
	require.NoError(t, m.Start(context.Background(), "127.0.0.1", 0, ""))
	assert.ErrorIs(t, m.Scale("ghost", 1), ErrNotFound)
}

// KV wait-with-delete -- §8 scenario 5: a wait=true Get issued after a
// key is set then deleted must not spuriously return; it blocks until
// the key is set again.
func TestMaster_KVWaitSurvivesIntermediateDelete(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "kv-wait",
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 0, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"exit 0"}},
		},
	}
	m, _ := newTestMaster(t, app)
	require.NoError(t, m.Start(context.Background(), "127.0.0.1", 0, ""))

	m.KV.Set("flag", "1")
	m.KV.Del("flag")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		_, err := m.KV.Get(ctx, "flag", true)
		errc <- err
	}()

	select {
	case err := <-errc:
		assert.Error(t, err, "delete must not satisfy a pending wait")
	case <-time.After(500 * time.Millisecond):
		t.Fatal("wait never returned")
	}
}

// Graceful shutdown -- §8 scenario 6: Shutdown kills every non-terminal
// container, is idempotent, and unregisters from the cluster exactly
// with the first-recorded final status.
func TestMaster_GracefulShutdownIsIdempotent(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "shutdown",
		Services: map[string]types.ServiceSpec{
			"worker": {Instances: 2, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"sleep 5"}},
		},
	}
	m, _ := newTestMaster(t, app)
	require.NoError(t, m.Start(context.Background(), "127.0.0.1", 0, ""))

	require.Eventually(t, func() bool {
		return m.Registry.NonTerminalCount("worker") == 2 &&
			len(m.Registry.GetContainers([]types.ContainerState{types.ContainerRunning}, nil)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Shutdown(context.Background(), types.FinalKilled, "user requested"))
	assert.Equal(t, types.ApplicationKilled, m.Report().State)
	assert.Equal(t, types.FinalKilled, m.Report().FinalStatus)
	assert.Zero(t, m.Registry.NonTerminalCount("worker"))

	// A second call must not change the recorded final status.
	require.NoError(t, m.Shutdown(context.Background(), types.FinalFailed, "ignored"))
	assert.Equal(t, types.FinalKilled, m.Report().FinalStatus)
}

func TestMaster_KillContainerIsIdempotentOnTerminalInstance(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "kill-idem",
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 1, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"exit 0"}},
		},
	}
	m, _ := newTestMaster(t, app)
	require.NoError(t, m.Start(context.Background(), "127.0.0.1", 0, ""))

	waitForState(t, m, "web", 0, types.ContainerSucceeded)
	assert.NoError(t, m.KillContainer("web", 0))
}

func TestMaster_GetServiceUnknownNotFound(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "svc-lookup",
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 0, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"exit 0"}},
		},
	}
	m, _ := newTestMaster(t, app)
	require.NoError(t, m.Start(context.Background(), "127.0.0.1", 0, ""))
	_, err := m.GetService("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

package cluster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skein-project/skein/pkg/types"
)

type recordingSink struct {
	mu          sync.Mutex
	allocated   []Allocated
	completions []Completed
}

func (s *recordingSink) OnContainersAllocated(ctx context.Context, allocs []Allocated) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocated = append(s.allocated, allocs...)
}

func (s *recordingSink) OnContainersCompleted(ctx context.Context, completions []Completed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions = append(s.completions, completions...)
}

func (s *recordingSink) OnShutdownRequest(ctx context.Context) {}
func (s *recordingSink) OnNodesUpdated(ctx context.Context)    {}

func (s *recordingSink) snapshotCompletions() []Completed {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Completed, len(s.completions))
	copy(out, s.completions)
	return out
}

func (s *recordingSink) snapshotAllocated() []Allocated {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Allocated, len(s.allocated))
	copy(out, s.allocated)
	return out
}

func TestFakeCluster_MaxResources(t *testing.T) {
	max := types.Resources{MemoryMiB: 1024, VCores: 4}
	fc := NewFakeCluster(zerolog.Nop(), max)
	got, err := fc.MaxResources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, max, got)
}

func TestFakeCluster_RequestContainersGrantsImmediately(t *testing.T) {
	fc := NewFakeCluster(zerolog.Nop(), types.Resources{MemoryMiB: 1024, VCores: 4})
	sink := &recordingSink{}
	fc.BindSink(sink)

	err := fc.RequestContainers(context.Background(), []ResourceRequest{
		{Service: "web", Instance: 0, Resources: types.Resources{MemoryMiB: 128, VCores: 1}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(sink.snapshotAllocated()) == 1
	}, time.Second, 5*time.Millisecond)
	got := sink.snapshotAllocated()[0]
	assert.Equal(t, "web", got.Service)
	assert.NotEmpty(t, got.ContainerID)
}

func TestFakeCluster_LaunchContainerReportsSuccess(t *testing.T) {
	fc := NewFakeCluster(zerolog.Nop(), types.Resources{MemoryMiB: 1024, VCores: 4})
	sink := &recordingSink{}
	fc.BindSink(sink)

	err := fc.LaunchContainer(context.Background(), "c1", LaunchContext{
		Commands: []string{"exit 0"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(sink.snapshotCompletions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := sink.snapshotCompletions()[0]
	assert.Equal(t, "c1", got.ContainerID)
	assert.Equal(t, 0, got.ExitStatus)
	assert.False(t, got.Preempted)
}

func TestFakeCluster_LaunchContainerReportsNonZeroExit(t *testing.T) {
	fc := NewFakeCluster(zerolog.Nop(), types.Resources{MemoryMiB: 1024, VCores: 4})
	sink := &recordingSink{}
	fc.BindSink(sink)

	err := fc.LaunchContainer(context.Background(), "c1", LaunchContext{
		Commands: []string{"exit 7"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(sink.snapshotCompletions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := sink.snapshotCompletions()[0]
	assert.Equal(t, 7, got.ExitStatus)
	assert.False(t, got.Preempted)
}

func TestFakeCluster_LaunchContainerStopsAtFirstFailingCommand(t *testing.T) {
	fc := NewFakeCluster(zerolog.Nop(), types.Resources{MemoryMiB: 1024, VCores: 4})
	sink := &recordingSink{}
	fc.BindSink(sink)

	err := fc.LaunchContainer(context.Background(), "c1", LaunchContext{
		Commands: []string{"exit 3", "echo should-not-run"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(sink.snapshotCompletions()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, sink.snapshotCompletions()[0].ExitStatus)
}

func TestFakeCluster_ReleaseContainerKillsRunningProcessAsPreempted(t *testing.T) {
	fc := NewFakeCluster(zerolog.Nop(), types.Resources{MemoryMiB: 1024, VCores: 4})
	sink := &recordingSink{}
	fc.BindSink(sink)

	err := fc.LaunchContainer(context.Background(), "c1", LaunchContext{
		Commands: []string{"sleep 5"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		fc.mu.Lock()
		_, ok := fc.running["c1"]
		fc.mu.Unlock()
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, fc.ReleaseContainer(context.Background(), "c1"))

	require.Eventually(t, func() bool {
		return len(sink.snapshotCompletions()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	got := sink.snapshotCompletions()[0]
	assert.True(t, got.Preempted)
}

func TestFakeCluster_UnregisterKillsAllRunningProcesses(t *testing.T) {
	fc := NewFakeCluster(zerolog.Nop(), types.Resources{MemoryMiB: 1024, VCores: 4})
	sink := &recordingSink{}
	fc.BindSink(sink)

	require.NoError(t, fc.LaunchContainer(context.Background(), "c1", LaunchContext{Commands: []string{"sleep 5"}}))
	require.Eventually(t, func() bool {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		return len(fc.running) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, fc.Unregister(context.Background(), types.FinalKilled, "shutdown"))

	fc.mu.Lock()
	n := len(fc.running)
	fc.mu.Unlock()
	assert.Zero(t, n)
}

func TestClassifyCompletion(t *testing.T) {
	assert.Equal(t, types.ContainerSucceeded, ClassifyCompletion(Completed{ExitStatus: 0}))
	assert.Equal(t, types.ContainerFailed, ClassifyCompletion(Completed{ExitStatus: 1}))
	assert.Equal(t, types.ContainerKilled, ClassifyCompletion(Completed{Preempted: true, ExitStatus: 1}))
	assert.Equal(t, types.ContainerKilled, ClassifyCompletion(Completed{Preempted: true, ExitStatus: 0}))
}

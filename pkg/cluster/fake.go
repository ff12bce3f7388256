package cluster

import (
	"bytes"
	"context"
	"os/exec"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skein-project/skein/pkg/types"
)

// FakeCluster is an in-memory, deterministic cluster interface
// implementation (§9: "tests use an in-memory fake that replays canned
// allocation/completion sequences deterministically"). Rather than
// replaying canned sequences it grants every request immediately and
// executes launched commands as real OS processes, so higher-level tests
// exercise real process lifecycles end to end.
type FakeCluster struct {
	mu       sync.Mutex
	sink     EventSink
	running  map[string]*exec.Cmd
	maxRes   types.Resources
	log      zerolog.Logger
	shutdown bool
}

// NewFakeCluster returns a FakeCluster reporting maxRes as its ceiling.
func NewFakeCluster(log zerolog.Logger, maxRes types.Resources) *FakeCluster {
	return &FakeCluster{
		running: make(map[string]*exec.Cmd),
		maxRes:  maxRes,
		log:     log,
	}
}

// BindSink attaches the event sink that receives allocation/completion
// callbacks. Must be called before RequestContainers.
func (f *FakeCluster) BindSink(sink EventSink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = sink
}

func (f *FakeCluster) Register(ctx context.Context, host string, port int, trackingURL string) error {
	f.log.Info().Str("host", host).Int("port", port).Str("tracking_url", trackingURL).Msg("registered with cluster")
	return nil
}

func (f *FakeCluster) Unregister(ctx context.Context, finalStatus types.FinalStatus, diagnostics string) error {
	f.mu.Lock()
	f.shutdown = true
	for id, cmd := range f.running {
		_ = killCmd(cmd)
		delete(f.running, id)
	}
	f.mu.Unlock()
	f.log.Info().Str("final_status", string(finalStatus)).Str("diagnostics", diagnostics).Msg("unregistered from cluster")
	return nil
}

func (f *FakeCluster) MaxResources(ctx context.Context) (types.Resources, error) {
	return f.maxRes, nil
}

// RequestContainers grants every request immediately, on its own
// goroutine, so callers observing the sink never block on this call.
func (f *FakeCluster) RequestContainers(ctx context.Context, reqs []ResourceRequest) error {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	if sink == nil {
		return nil
	}

	allocs := make([]Allocated, 0, len(reqs))
	for _, r := range reqs {
		allocs = append(allocs, Allocated{
			ContainerID: uuid.NewString(),
			Service:     r.Service,
			Instance:    r.Instance,
			Resources:   r.Resources,
		})
	}
	go sink.OnContainersAllocated(ctx, allocs)
	return nil
}

func (f *FakeCluster) ReleaseContainer(ctx context.Context, containerID string) error {
	f.mu.Lock()
	cmd, ok := f.running[containerID]
	delete(f.running, containerID)
	f.mu.Unlock()
	if ok {
		return killCmd(cmd)
	}
	return nil
}

// LaunchContainer runs lc's commands sequentially as OS processes with
// the given environment, the local analog of a NodeManager executing a
// YARN LaunchContext. Completion is reported back to the sink.
func (f *FakeCluster) LaunchContainer(ctx context.Context, containerID string, lc LaunchContext) error {
	env := make([]string, 0, len(lc.Env))
	for k, v := range lc.Env {
		env = append(env, k+"="+v)
	}

	go func() {
		var exitStatus int
		var diag bytes.Buffer

		for _, command := range lc.Commands {
			cmd := exec.CommandContext(ctx, "sh", "-c", command)
			cmd.Env = env
			cmd.Stdout = &diag
			cmd.Stderr = &diag

			f.mu.Lock()
			if f.shutdown {
				f.mu.Unlock()
				return
			}
			f.running[containerID] = cmd
			f.mu.Unlock()

			err := cmd.Run()

			f.mu.Lock()
			_, stillTracked := f.running[containerID]
			delete(f.running, containerID)
			preempted := !stillTracked
			f.mu.Unlock()

			if preempted {
				f.reportCompletion(ctx, containerID, 0, true, "killed")
				return
			}
			if err != nil {
				exitStatus = exitStatusOf(err)
				f.reportCompletion(ctx, containerID, exitStatus, false, diag.String())
				return
			}
		}
		f.reportCompletion(ctx, containerID, exitStatus, false, diag.String())
	}()
	return nil
}

func (f *FakeCluster) reportCompletion(ctx context.Context, containerID string, exitStatus int, preempted bool, diagnostics string) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	if sink == nil {
		return
	}
	sink.OnContainersCompleted(ctx, []Completed{{
		ContainerID: containerID,
		ExitStatus:  exitStatus,
		Preempted:   preempted,
		Diagnostics: diagnostics,
	}})
}

func killCmd(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func exitStatusOf(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return 1
}

package client

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skein-project/skein/pkg/spec"
	"github.com/skein-project/skein/pkg/types"
)

func newTestDaemon() *Daemon {
	return NewDaemon(spec.Limits{MaxMemoryMiB: 4096, MaxVCores: 8}, zerolog.Nop())
}

func oneServiceSpec(name string, commands []string) types.ApplicationSpec {
	return types.ApplicationSpec{
		Name: name,
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 1, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: commands},
		},
	}
}

func TestDaemon_SubmitStartsApplicationAndReportsStatus(t *testing.T) {
	d := newTestDaemon()
	id, err := d.Submit(context.Background(), oneServiceSpec("app", []string{"exit 0"}))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		r, err := d.GetStatus(id)
		return err == nil && r.State == types.ApplicationFinished
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDaemon_SubmitRejectsInvalidSpec(t *testing.T) {
	d := newTestDaemon()
	bad := types.ApplicationSpec{Name: "", Services: map[string]types.ServiceSpec{}}
	_, err := d.Submit(context.Background(), bad)
	assert.Error(t, err)
}

func TestDaemon_SubmitRejectsSpecOverClusterLimits(t *testing.T) {
	d := newTestDaemon()
	over := types.ApplicationSpec{
		Name: "too-big",
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 1, Resources: types.Resources{MemoryMiB: 999999, VCores: 1}, Commands: []string{"exit 0"}},
		},
	}
	_, err := d.Submit(context.Background(), over)
	assert.Error(t, err)
}

func TestDaemon_GetStatusUnknownApplication(t *testing.T) {
	d := newTestDaemon()
	_, err := d.GetStatus("ghost")
	assert.Error(t, err)
}

func TestDaemon_GetApplicationsFiltersByState(t *testing.T) {
	d := newTestDaemon()
	id, err := d.Submit(context.Background(), oneServiceSpec("finishing", []string{"exit 0"}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r, err := d.GetStatus(id)
		return err == nil && r.State == types.ApplicationFinished
	}, 2*time.Second, 10*time.Millisecond)

	reports := d.GetApplications([]types.ApplicationState{types.ApplicationFinished})
	require.Len(t, reports, 1)
	assert.Equal(t, id, reports[0].ID)

	assert.Empty(t, d.GetApplications([]types.ApplicationState{types.ApplicationKilled}))
	assert.Len(t, d.GetApplications(nil), 1)
}

func TestDaemon_WaitForStartResolvesOnceHostIsBound(t *testing.T) {
	d := newTestDaemon()
	id, err := d.Submit(context.Background(), oneServiceSpec("waiter", []string{"sleep 5"}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	report, err := d.WaitForStart(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, report.Host)
	assert.NotZero(t, report.Port)
}

func TestDaemon_WaitForStartUnknownApplication(t *testing.T) {
	d := newTestDaemon()
	_, err := d.WaitForStart(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestDaemon_KillStopsApplicationAndServer(t *testing.T) {
	d := newTestDaemon()
	id, err := d.Submit(context.Background(), oneServiceSpec("victim", []string{"sleep 5"}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r, err := d.GetStatus(id)
		return err == nil && r.Host != ""
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, d.Kill(context.Background(), id))

	r, err := d.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, types.ApplicationKilled, r.State)
}

func TestDaemon_KillUnknownApplication(t *testing.T) {
	d := newTestDaemon()
	assert.Error(t, d.Kill(context.Background(), "ghost"))
}

func TestDaemon_DialMasterReachesTheRunningApplicationMaster(t *testing.T) {
	d := newTestDaemon()
	id, err := d.Submit(context.Background(), oneServiceSpec("dialed", []string{"exit 0"}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, eventuallyHasHost(ctx, d, id))

	mc, closeFn, err := d.DialMaster(context.Background(), id)
	require.NoError(t, err)
	defer closeFn()

	resp, err := mc.GetApplicationSpec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dialed", resp.Spec.Name)
}

func TestDaemon_DialMasterUnknownApplication(t *testing.T) {
	d := newTestDaemon()
	_, _, err := d.DialMaster(context.Background(), "ghost")
	assert.Error(t, err)
}

func eventuallyHasHost(ctx context.Context, d *Daemon, id string) error {
	for {
		r, err := d.GetStatus(id)
		if err == nil && r.Host != "" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

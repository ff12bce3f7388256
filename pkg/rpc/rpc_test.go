package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/skein-project/skein/pkg/cluster"
	"github.com/skein-project/skein/pkg/master"
	"github.com/skein-project/skein/pkg/security"
	"github.com/skein-project/skein/pkg/types"
)

// buildServerAndClient wires a full mTLS-secured Master RPC stack: a
// FakeCluster-backed *master.Master served by *Server over a real TCP
// listener, and a MasterClient dialed against it through the same
// certificate authority.
func buildServerAndClient(t *testing.T, app types.ApplicationSpec) (*master.Master, *MasterClient, func()) {
	t.Helper()

	authority, err := security.NewAuthority()
	require.NoError(t, err)

	serverCert, err := authority.IssueCertificate("skein-master", []string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	clientCert, err := authority.IssueCertificate("skein-client", nil, nil)
	require.NoError(t, err)

	fc := cluster.NewFakeCluster(zerolog.Nop(), types.Resources{MemoryMiB: 4096, VCores: 8})
	m := master.New("rpc-test", app, fc, zerolog.Nop())
	require.NoError(t, m.Start(context.Background(), "127.0.0.1", 0, ""))

	srv := NewServer(m, authority.ServerTLSConfig(serverCert), zerolog.Nop())
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go srv.Serve(lis)

	clientTLS := authority.ClientTLSConfig(clientCert)
	clientTLS.ServerName = "localhost"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cc, err := grpc.DialContext(ctx, lis.Addr().String(),
		grpc.WithTransportCredentials(credentials.NewTLS(clientTLS)), grpc.WithBlock())
	require.NoError(t, err)

	client := NewMasterClient(cc, 5*time.Second)
	cleanup := func() {
		cc.Close()
		srv.Stop()
	}
	return m, client, cleanup
}

func TestRPC_KeyValueRoundTrip(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "kv",
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 0, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"exit 0"}},
		},
	}
	_, client, cleanup := buildServerAndClient(t, app)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, client.KeyValueSet(ctx, "foo", "bar"))

	v, err := client.KeyValueGet(ctx, "foo", false)
	require.NoError(t, err)
	assert.Equal(t, "bar", v)

	all, err := client.KeyValueGetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bar", all["foo"])

	require.NoError(t, client.KeyValueDel(ctx, "foo"))
	_, err = client.KeyValueGet(ctx, "foo", false)
	assert.Error(t, err)
}

func TestRPC_KeyValueGetBlocksUntilSet(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "kv-wait",
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 0, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"exit 0"}},
		},
	}
	_, client, cleanup := buildServerAndClient(t, app)
	defer cleanup()

	errc := make(chan error, 1)
	valc := make(chan string, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		v, err := client.KeyValueGet(ctx, "gate", true)
		errc <- err
		valc <- v
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, client.KeyValueSet(context.Background(), "gate", "open"))

	require.NoError(t, <-errc)
	assert.Equal(t, "open", <-valc)
}

func TestRPC_GetApplicationSpec(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "spec-app",
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 0, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"exit 0"}},
		},
	}
	_, client, cleanup := buildServerAndClient(t, app)
	defer cleanup()

	resp, err := client.GetApplicationSpec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "spec-app", resp.Spec.Name)
}

func TestRPC_GetServiceUnknownNotFound(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "svc",
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 0, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"exit 0"}},
		},
	}
	_, client, cleanup := buildServerAndClient(t, app)
	defer cleanup()

	_, err := client.GetService(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestRPC_ScaleAndGetContainers(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "scale",
		Services: map[string]types.ServiceSpec{
			"worker": {Instances: 1, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"sleep 5"}},
		},
	}
	m, client, cleanup := buildServerAndClient(t, app)
	defer cleanup()

	require.Eventually(t, func() bool {
		return m.Registry.NonTerminalCount("worker") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Scale(context.Background(), "worker", 3))
	require.Eventually(t, func() bool {
		return m.Registry.NonTerminalCount("worker") == 3
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := client.GetContainers(context.Background(), &GetContainersRequest{Services: []string{"worker"}})
	require.NoError(t, err)
	assert.Len(t, resp.Containers, 3)
}

func TestRPC_ScaleRejectsNegativeInstances(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "neg",
		Services: map[string]types.ServiceSpec{
			"worker": {Instances: 1, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"sleep 5"}},
		},
	}
	_, client, cleanup := buildServerAndClient(t, app)
	defer cleanup()

	err := client.Scale(context.Background(), "worker", -1)
	assert.Error(t, err)
}

func TestRPC_KillContainer(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "kill",
		Services: map[string]types.ServiceSpec{
			"worker": {Instances: 1, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"sleep 5"}},
		},
	}
	m, client, cleanup := buildServerAndClient(t, app)
	defer cleanup()

	require.Eventually(t, func() bool {
		c, ok := m.Registry.Get("worker", 0)
		return ok && c.State == types.ContainerRunning
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.KillContainer(context.Background(), "worker", 0))
	require.Eventually(t, func() bool {
		c, ok := m.Registry.Get("worker", 0)
		return ok && c.State == types.ContainerKilled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRPC_GetApplicationReport(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "report",
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 1, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"exit 0"}},
		},
	}
	_, client, cleanup := buildServerAndClient(t, app)
	defer cleanup()

	require.Eventually(t, func() bool {
		resp, err := client.GetApplicationReport(context.Background())
		return err == nil && resp.Report.State == types.ApplicationFinished
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRPC_ShutdownStopsServiceAndIsIdempotent(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "shutdown",
		Services: map[string]types.ServiceSpec{
			"worker": {Instances: 1, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"sleep 5"}},
		},
	}
	m, client, cleanup := buildServerAndClient(t, app)
	defer cleanup()

	require.Eventually(t, func() bool {
		return m.Registry.NonTerminalCount("worker") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Shutdown(context.Background(), string(types.FinalKilled), "client requested"))
	assert.Equal(t, types.ApplicationKilled, m.Report().State)

	require.NoError(t, client.Shutdown(context.Background(), string(types.FinalFailed), "ignored"))
	assert.Equal(t, types.FinalKilled, m.Report().FinalStatus)
}

func TestRPC_UnauthenticatedClientIsRejected(t *testing.T) {
	app := types.ApplicationSpec{
		Name: "untrusted",
		Services: map[string]types.ServiceSpec{
			"web": {Instances: 0, Resources: types.Resources{MemoryMiB: 128, VCores: 1}, Commands: []string{"exit 0"}},
		},
	}

	authority, err := security.NewAuthority()
	require.NoError(t, err)
	serverCert, err := authority.IssueCertificate("skein-master", []string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")})
	require.NoError(t, err)

	otherAuthority, err := security.NewAuthority()
	require.NoError(t, err)
	foreignCert, err := otherAuthority.IssueCertificate("intruder", nil, nil)
	require.NoError(t, err)

	fc := cluster.NewFakeCluster(zerolog.Nop(), types.Resources{MemoryMiB: 4096, VCores: 8})
	m := master.New("untrusted-test", app, fc, zerolog.Nop())
	require.NoError(t, m.Start(context.Background(), "127.0.0.1", 0, ""))

	srv := NewServer(m, authority.ServerTLSConfig(serverCert), zerolog.Nop())
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(lis)
	defer srv.Stop()

	foreignTLS := otherAuthority.ClientTLSConfig(foreignCert)
	foreignTLS.ServerName = "localhost"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = grpc.DialContext(ctx, lis.Addr().String(),
		grpc.WithTransportCredentials(credentials.NewTLS(foreignTLS)), grpc.WithBlock())
	assert.Error(t, err, "a client trusting a different root CA must fail the TLS handshake")
}

// Package client implements the Daemon contract (§4.H): a thin submit/
// status/kill proxy that, in a real deployment, holds a persistent
// connection to the YARN ResourceManager on the client host. Skein has no
// such resource manager to talk to, so this Daemon plays both roles: it
// submits validated specs to an in-memory cluster.FakeCluster and starts
// one Application Master per submission in-process, then serves the rest
// of the contract (status, wait, kill) by calling that in-process AM
// directly. DialMaster opens an mTLS Master RPC connection to an AM for
// callers that want the same path a remote client would use.
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skein-project/skein/pkg/cluster"
	"github.com/skein-project/skein/pkg/master"
	"github.com/skein-project/skein/pkg/rpc"
	"github.com/skein-project/skein/pkg/security"
	"github.com/skein-project/skein/pkg/spec"
	"github.com/skein-project/skein/pkg/types"
)

// application bundles everything the Daemon owns for one submitted
// ApplicationSpec.
type application struct {
	id     string
	master *master.Master
	srv    *rpc.Server
	lis    net.Listener
	auth   *security.Authority
}

// Daemon is the user-facing client proxy (§4.H).
type Daemon struct {
	mu     sync.RWMutex
	apps   map[string]*application
	limits spec.Limits
	log    zerolog.Logger
}

// NewDaemon builds a Daemon enforcing limits on every submitted spec.
func NewDaemon(limits spec.Limits, log zerolog.Logger) *Daemon {
	return &Daemon{
		apps:   make(map[string]*application),
		limits: limits,
		log:    log.With().Str("component", "daemon").Logger(),
	}
}

// Ping verifies the Daemon process itself is responsive.
func (d *Daemon) Ping() error { return nil }

// Submit validates spec and starts an Application Master for it,
// returning the application's id.
func (d *Daemon) Submit(ctx context.Context, appSpec types.ApplicationSpec) (string, error) {
	if err := spec.Validate(appSpec, d.limits); err != nil {
		return "", fmt.Errorf("client: %w", err)
	}

	id := uuid.NewString()
	auth, err := security.NewAuthority()
	if err != nil {
		return "", fmt.Errorf("client: build certificate authority: %w", err)
	}

	maxRes := types.Resources{MemoryMiB: d.limits.MaxMemoryMiB, VCores: d.limits.MaxVCores}
	fc := cluster.NewFakeCluster(d.log.With().Str("application_id", id).Logger(), maxRes)

	amLog := d.log.With().Str("application_id", id).Str("component", "am").Logger()
	m := master.New(id, appSpec, fc, amLog)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("client: listen for application master: %w", err)
	}

	serverCert, err := auth.IssueCertificate("skein-am", []string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")})
	if err != nil {
		lis.Close()
		return "", fmt.Errorf("client: issue am certificate: %w", err)
	}
	tlsConfig := auth.ServerTLSConfig(serverCert)

	srv := rpc.NewServer(m, tlsConfig, amLog)
	go func() {
		if err := srv.Serve(lis); err != nil {
			amLog.Info().Err(err).Msg("application master rpc server stopped")
		}
	}()

	host, portStr, _ := net.SplitHostPort(lis.Addr().String())
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	trackingURL := fmt.Sprintf("http://%s:%d/", host, port)

	if err := m.Start(ctx, host, port, trackingURL); err != nil {
		srv.Stop()
		lis.Close()
		return "", fmt.Errorf("client: start application master: %w", err)
	}

	d.mu.Lock()
	d.apps[id] = &application{id: id, master: m, srv: srv, lis: lis, auth: auth}
	d.mu.Unlock()

	d.log.Info().Str("application_id", id).Str("addr", lis.Addr().String()).Msg("application submitted")
	return id, nil
}

// GetStatus returns the current ApplicationReport for id.
func (d *Daemon) GetStatus(id string) (types.ApplicationReport, error) {
	app, err := d.lookup(id)
	if err != nil {
		return types.ApplicationReport{}, err
	}
	return app.master.Report(), nil
}

// GetApplications returns reports for every known application, optionally
// filtered to the given states.
func (d *Daemon) GetApplications(states []types.ApplicationState) []types.ApplicationReport {
	d.mu.RLock()
	defer d.mu.RUnlock()

	wanted := toSet(states)
	reports := make([]types.ApplicationReport, 0, len(d.apps))
	for _, app := range d.apps {
		r := app.master.Report()
		if len(wanted) == 0 || wanted[r.State] {
			reports = append(reports, r)
		}
	}
	return reports
}

// WaitForStart blocks until id's AM reports a bound host:port, or ctx is
// cancelled. In this in-process Daemon the endpoint is already known by
// the time Submit returns, so this resolves immediately; it exists to
// honor the Daemon contract for callers that submit asynchronously.
func (d *Daemon) WaitForStart(ctx context.Context, id string) (types.ApplicationReport, error) {
	app, err := d.lookup(id)
	if err != nil {
		return types.ApplicationReport{}, err
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		r := app.master.Report()
		if r.Host != "" {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return types.ApplicationReport{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Kill terminates id's application with final_status=KILLED.
func (d *Daemon) Kill(ctx context.Context, id string) error {
	app, err := d.lookup(id)
	if err != nil {
		return err
	}
	if err := app.master.Shutdown(ctx, types.FinalKilled, "killed by client"); err != nil {
		return err
	}
	app.srv.Stop()
	return nil
}

// DialMaster opens an mTLS Master RPC client to id's AM, for KV and
// container operations not covered by the Daemon contract itself.
func (d *Daemon) DialMaster(ctx context.Context, id string) (*rpc.MasterClient, func(), error) {
	app, err := d.lookup(id)
	if err != nil {
		return nil, nil, err
	}

	report := app.master.Report()
	clientCert, err := app.auth.IssueCertificate("skein-cli", nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("client: issue client certificate: %w", err)
	}
	tlsConfig := app.auth.ClientTLSConfig(clientCert)

	addr := fmt.Sprintf("%s:%d", report.Host, report.Port)
	cc, err := dialTLS(ctx, addr, tlsConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("client: dial application master: %w", err)
	}
	return rpc.NewMasterClient(cc, 10*time.Second), func() { cc.Close() }, nil
}

func (d *Daemon) lookup(id string) (*application, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	app, ok := d.apps[id]
	if !ok {
		return nil, fmt.Errorf("client: application %q not found", id)
	}
	return app, nil
}

func toSet(states []types.ApplicationState) map[types.ApplicationState]bool {
	if len(states) == 0 {
		return nil
	}
	set := make(map[types.ApplicationState]bool, len(states))
	for _, s := range states {
		set[s] = true
	}
	return set
}

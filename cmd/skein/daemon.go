package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/skein-project/skein/pkg/client"
	"github.com/skein-project/skein/pkg/health"
	"github.com/skein-project/skein/pkg/log"
	"github.com/skein-project/skein/pkg/rpc"
	"github.com/skein-project/skein/pkg/spec"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the Skein client-side daemon",
	Long: `Run the long-lived daemon that accepts submit/status/kill requests
and owns one Application Master process per submitted application.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().String("listen", "127.0.0.1:9070", "Address to listen on")
	daemonCmd.Flags().String("health-listen", "127.0.0.1:9071", "Address for /health, /ready, /metrics")
	daemonCmd.Flags().Int("max-memory-mib", 65536, "Cluster-reported maximum container memory (MiB)")
	daemonCmd.Flags().Int("max-vcores", 64, "Cluster-reported maximum container vcores")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	listen, _ := cmd.Flags().GetString("listen")
	healthListen, _ := cmd.Flags().GetString("health-listen")
	maxMem, _ := cmd.Flags().GetInt("max-memory-mib")
	maxVCores, _ := cmd.Flags().GetInt("max-vcores")

	limits := spec.Limits{MaxMemoryMiB: maxMem, MaxVCores: maxVCores}
	daemon := client.NewDaemon(limits, log.WithComponent("daemon"))

	grpcSrv := grpc.NewServer()
	rpc.RegisterDaemonServer(grpcSrv, client.NewServer(daemon))

	lis, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listen, err)
	}

	go func() {
		log.Logger.Info().Str("addr", listen).Msg("skein daemon listening")
		if err := grpcSrv.Serve(lis); err != nil {
			log.Logger.Error().Err(err).Msg("daemon rpc server stopped")
		}
	}()

	hs := health.NewServer(nil)
	go func() {
		if err := hs.Start(healthListen); err != nil {
			log.Logger.Error().Err(err).Msg("daemon health server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Logger.Info().Msg("shutting down skein daemon")
	grpcSrv.GracefulStop()
	return nil
}

// dialDaemon opens an insecure local connection to the daemon. The
// Daemon<->CLI hop is loopback-only by convention; mutual TLS is reserved
// for the per-application Master RPC that containers reach over the
// network via SKEIN_APPMASTER_ADDRESS.
func dialDaemon(ctx context.Context, addr string) (*rpc.DaemonClient, func(), error) {
	cc, err := grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(insecure.NewCredentials()), grpc.WithBlock())
	if err != nil {
		return nil, nil, fmt.Errorf("dial daemon at %s: %w", addr, err)
	}
	return rpc.NewDaemonClient(cc, 0), func() { cc.Close() }, nil
}

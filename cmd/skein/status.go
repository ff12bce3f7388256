package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skein-project/skein/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show an application's status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dc, closeFn, err := dialDaemon(ctx, daemonAddr(cmd))
	if err != nil {
		return unreachableError(err)
	}
	defer closeFn()

	report, err := dc.GetStatus(ctx, args[0])
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

func printReport(r types.ApplicationReport) {
	fmt.Printf("id:           %s\n", r.ID)
	fmt.Printf("name:         %s\n", r.Name)
	fmt.Printf("queue:        %s\n", r.Queue)
	fmt.Printf("state:        %s\n", r.State)
	fmt.Printf("final_status: %s\n", r.FinalStatus)
	fmt.Printf("progress:     %.0f%%\n", r.Progress*100)
	fmt.Printf("address:      %s:%d\n", r.Host, r.Port)
	fmt.Printf("tracking_url: %s\n", r.TrackingURL)
	if r.Diagnostics != "" {
		fmt.Printf("diagnostics:  %s\n", r.Diagnostics)
	}
}

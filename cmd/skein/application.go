package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skein-project/skein/pkg/types"
)

var applicationCmd = &cobra.Command{
	Use:   "application",
	Short: "Manage applications",
}

var applicationLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List applications",
	RunE:  runApplicationLs,
}

func init() {
	applicationLsCmd.Flags().StringSlice("state", nil, "Filter by application state (repeatable)")
	applicationCmd.AddCommand(applicationLsCmd)
}

func runApplicationLs(cmd *cobra.Command, args []string) error {
	rawStates, _ := cmd.Flags().GetStringSlice("state")
	states := make([]types.ApplicationState, len(rawStates))
	for i, s := range rawStates {
		states[i] = types.ApplicationState(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dc, closeFn, err := dialDaemon(ctx, daemonAddr(cmd))
	if err != nil {
		return unreachableError(err)
	}
	defer closeFn()

	reports, err := dc.GetApplications(ctx, states)
	if err != nil {
		return err
	}

	fmt.Printf("%-36s %-20s %-10s %-10s\n", "ID", "NAME", "STATE", "FINAL")
	for _, r := range reports {
		fmt.Printf("%-36s %-20s %-10s %-10s\n", r.ID, r.Name, r.State, r.FinalStatus)
	}
	return nil
}

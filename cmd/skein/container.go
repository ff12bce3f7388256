package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var containerCmd = &cobra.Command{
	Use:   "container",
	Short: "Manage an application's containers",
}

var containerLsCmd = &cobra.Command{
	Use:   "ls <id>",
	Short: "List containers for an application",
	Args:  cobra.ExactArgs(1),
	RunE:  runContainerLs,
}

var containerKillCmd = &cobra.Command{
	Use:   "kill <id> <service> <instance>",
	Short: "Kill a single container instance",
	Args:  cobra.ExactArgs(3),
	RunE:  runContainerKill,
}

func init() {
	containerLsCmd.Flags().StringSlice("service", nil, "Filter by service name (repeatable)")
	containerCmd.AddCommand(containerLsCmd, containerKillCmd)
}

func runContainerLs(cmd *cobra.Command, args []string) error {
	services, _ := cmd.Flags().GetStringSlice("service")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dc, closeFn, err := dialDaemon(ctx, daemonAddr(cmd))
	if err != nil {
		return unreachableError(err)
	}
	defer closeFn()

	containers, err := dc.GetContainers(ctx, args[0], nil, services)
	if err != nil {
		return err
	}

	fmt.Printf("%-20s %-10s %-10s %s\n", "SERVICE", "INSTANCE", "STATE", "YARN_ID")
	for _, c := range containers {
		fmt.Printf("%-20s %-10d %-10s %s\n", c.ServiceName, c.Instance, c.State, c.YarnContainerID)
	}
	return nil
}

func runContainerKill(cmd *cobra.Command, args []string) error {
	instance, err := strconv.Atoi(args[2])
	if err != nil {
		return userError(fmt.Errorf("instance must be an integer: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dc, closeFn, err := dialDaemon(ctx, daemonAddr(cmd))
	if err != nil {
		return unreachableError(err)
	}
	defer closeFn()

	return dc.KillContainer(ctx, args[0], args[1], instance)
}

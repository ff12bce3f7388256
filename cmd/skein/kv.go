package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Read and write an application's key-value store",
}

var kvGetCmd = &cobra.Command{
	Use:   "get <id> <key>",
	Short: "Get a key's value",
	Args:  cobra.ExactArgs(2),
	RunE:  runKVGet,
}

var kvSetCmd = &cobra.Command{
	Use:   "set <id> <key> <value>",
	Short: "Set a key's value",
	Args:  cobra.ExactArgs(3),
	RunE:  runKVSet,
}

var kvDelCmd = &cobra.Command{
	Use:   "del <id> <key>",
	Short: "Delete a key",
	Args:  cobra.ExactArgs(2),
	RunE:  runKVDel,
}

var kvLsCmd = &cobra.Command{
	Use:   "ls <id>",
	Short: "List all key-value pairs",
	Args:  cobra.ExactArgs(1),
	RunE:  runKVLs,
}

func init() {
	kvGetCmd.Flags().Bool("wait", false, "Block until the key is set")
	kvCmd.AddCommand(kvGetCmd, kvSetCmd, kvDelCmd, kvLsCmd)
}

func runKVGet(cmd *cobra.Command, args []string) error {
	wait, _ := cmd.Flags().GetBool("wait")

	ctx := context.Background()
	var cancel context.CancelFunc
	if !wait {
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	dc, closeFn, err := dialDaemon(ctx, daemonAddr(cmd))
	if err != nil {
		return unreachableError(err)
	}
	defer closeFn()

	v, err := dc.KeyValueGet(ctx, args[0], args[1], wait)
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func runKVSet(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dc, closeFn, err := dialDaemon(ctx, daemonAddr(cmd))
	if err != nil {
		return unreachableError(err)
	}
	defer closeFn()

	return dc.KeyValueSet(ctx, args[0], args[1], args[2])
}

func runKVDel(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dc, closeFn, err := dialDaemon(ctx, daemonAddr(cmd))
	if err != nil {
		return unreachableError(err)
	}
	defer closeFn()

	return dc.KeyValueDel(ctx, args[0], args[1])
}

func runKVLs(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dc, closeFn, err := dialDaemon(ctx, daemonAddr(cmd))
	if err != nil {
		return unreachableError(err)
	}
	defer closeFn()

	values, err := dc.KeyValueGetAll(ctx, args[0])
	if err != nil {
		return err
	}
	for k, v := range values {
		fmt.Printf("%s=%s\n", k, v)
	}
	return nil
}

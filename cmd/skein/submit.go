package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skein-project/skein/pkg/spec"
)

var submitCmd = &cobra.Command{
	Use:   "submit <spec.yaml>",
	Short: "Submit an application spec",
	Long: `Parse and submit a YAML ApplicationSpec to the daemon, printing the
new application's id on success.

Examples:
  skein submit app.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().Bool("wait", false, "Block until the application master reports a bound endpoint")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	appSpec, err := spec.ParseFile(args[0])
	if err != nil {
		return userError(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dc, closeFn, err := dialDaemon(ctx, daemonAddr(cmd))
	if err != nil {
		return unreachableError(err)
	}
	defer closeFn()

	id, err := dc.Submit(ctx, appSpec)
	if err != nil {
		return err
	}
	fmt.Println(id)

	wait, _ := cmd.Flags().GetBool("wait")
	if !wait {
		return nil
	}

	report, err := dc.WaitForStart(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("running at %s:%d\n", report.Host, report.Port)
	return nil
}

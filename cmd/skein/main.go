package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skein-project/skein/pkg/log"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Exit codes per §6: 0 success, 1 user error, 2 cluster/AM unreachable,
// 3 not found.
const (
	exitOK             = 0
	exitUserError      = 1
	exitUnreachable    = 2
	exitNotFound       = 3
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "skein",
	Short: "Skein - deploy and manage multi-service applications on YARN",
	Long: `Skein runs a long-lived Application Master inside a YARN cluster
that launches a set of named services in dependency order, supervises
their containers with bounded restarts, and exposes a watchable
key-value store for service rendezvous.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"skein version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("daemon", "127.0.0.1:9070", "Skein daemon address")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(applicationCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(containerCmd)
	rootCmd.AddCommand(kvCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func daemonAddr(cmd *cobra.Command) string {
	addr, _ := cmd.Flags().GetString("daemon")
	return addr
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "claude-loop",
		Short: "Claude Loop - Autonomous iteration controller",
		Long: `Claude Loop drives an external AI coding CLI in a Reason-Act-Reflect-Verify
cycle until the work is done. It retries with backoff, infers rate-limit
resume times, detects stagnation from diff fingerprints, and asks a
multi-member completion council before declaring the task finished.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

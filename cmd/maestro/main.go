// Maestro is a construction-plan review assistant. It keeps one
// continuous conversation with the superintendent, explores the plan
// knowledge store on a heartbeat, and serves a read-only dashboard.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set by goreleaser via ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := &cobra.Command{
		Use:   "maestro",
		Short: "Construction plan review assistant",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "maestro.yaml", "path to config file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newHashPasswordCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("maestro %s (%s)\n", version, commit)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

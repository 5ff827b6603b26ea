// Command wonopcore is the process entrypoint for the session runtime of
// SPEC_FULL.md: it wires the Session Runner (§4.1) and its dependent
// components into a long-running process exposing the §6 WebSocket
// reference integration, grounded on the teacher's cmd/nexus command
// surface (a spf13/cobra root with serve/migrate/doctor subcommands).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wonopcore",
		Short: "wonopcore runs the interactive coding-assistant session core",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a wonopcore.yaml config file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newDoctorCmd())
	return root
}

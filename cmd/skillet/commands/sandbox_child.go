package commands

import (
	"os"

	"github.com/roasbeef/skillet/internal/subproc"
	"github.com/spf13/cobra"
)

// sandboxChildCmd is the entry point for OS-sandboxed execution. The
// parent process re-execs this binary with this command, passes the
// request on stdin, and reads the response from stdout. Hidden: it is an
// implementation detail of untrusted-tier execution, never invoked by
// hand.
var sandboxChildCmd = &cobra.Command{
	Use:    subproc.ChildCommand,
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return subproc.RunChild(cmd.Context(), os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(sandboxChildCmd)
}

package commands

import (
	"github.com/roasbeef/skillet/internal/build"
	"github.com/spf13/cobra"
)

var (
	// dbPath is the path to the SQLite database.
	dbPath string

	// outputFormat controls output format (text, json).
	outputFormat string

	// debugLevel is the log level applied to all subsystems.
	debugLevel string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "skillet",
	Short: "Skillet sandboxed skill manager CLI",
	Long: `Skillet installs and runs skills for Claude Code agents under a
capability-based security pipeline.

Installation resolves dependencies, composes inherited capabilities, and
records an explicit grant. Execution dispatches by trust tier: prompt-only
skills return their prompt, verified bytecode runs in an in-process wasm
sandbox, and untrusted bytecode runs in an OS-sandboxed child process.
Every capability check lands in an append-only audit trail.`,

	// Subsystem loggers go to stderr so command output on stdout stays
	// parseable. The hidden sandbox-child command inherits this too:
	// its stderr is captured by the parent process, so a degraded
	// OS-sandbox warning from the child surfaces in the parent's error.
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		_, err := build.SetupLoggers(build.LogConfig{
			DebugLevel: debugLevel,
		})

		return err
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(
		&dbPath, "db", "",
		"Path to SQLite database (default: ~/.skillet/skillet.db)",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)
	rootCmd.PersistentFlags().StringVar(
		&debugLevel, "debuglevel", "info",
		"Log level: trace, debug, info, warn, error",
	)

	// Add subcommands.
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

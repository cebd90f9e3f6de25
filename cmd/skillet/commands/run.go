package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	runVersionFlag string
	runInput       string
	runInputFile   string
)

var runCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run an installed skill",
	Long: `Run an installed skill with an input payload.

Execution dispatches by the skill's trust tier: local skills return
their prompt text, verified skills run in the in-process wasm sandbox,
and untrusted skills run in an OS-sandboxed child process. Resource
budgets (fuel, memory, deadline) come from the tier.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(
		&runVersionFlag, "version", "",
		"Skill version (default: latest installed)",
	)
	runCmd.Flags().StringVar(
		&runInput, "input", "",
		"Input payload passed to the skill",
	)
	runCmd.Flags().StringVar(
		&runInputFile, "input-file", "",
		"Read the input payload from a file ('-' for stdin)",
	)
}

func runRun(cmd *cobra.Command, args []string) error {
	input := []byte(runInput)
	switch {
	case runInputFile == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		input = data
	case runInputFile != "":
		data, err := os.ReadFile(runInputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		input = data
	}

	svc, store, err := openService()
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := svc.Execute(
		cmd.Context(), args[0], runVersionFlag, input,
	)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		out := map[string]any{
			"invocation_id":     result.InvocationID,
			"output":            string(result.Output),
			"success":           result.Err == nil,
			"fuel_consumed":     result.FuelConsumed,
			"memory_peak_bytes": result.MemoryPeakBytes,
			"duration_ms":       result.Duration.Milliseconds(),
		}
		if result.Err != nil {
			out["error"] = result.Err.Error()
		}
		if err := outputJSON(out); err != nil {
			return err
		}
	default:
		os.Stdout.Write(result.Output)
		if len(result.Output) > 0 &&
			result.Output[len(result.Output)-1] != '\n' {

			fmt.Println()
		}
		fmt.Fprintf(os.Stderr,
			"invocation=%s fuel=%d mem=%d dur=%s\n",
			result.InvocationID, result.FuelConsumed,
			result.MemoryPeakBytes, result.Duration)
	}

	if result.Err != nil {
		return fmt.Errorf("invocation %s failed: %w",
			result.InvocationID, result.Err)
	}

	return nil
}

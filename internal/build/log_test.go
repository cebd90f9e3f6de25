package build

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSetupLoggersConsoleOnly checks the console-only configuration used
// by the CLI, where no log directory is configured.
func TestSetupLoggersConsoleOnly(t *testing.T) {
	setup, err := SetupLoggers(LogConfig{DebugLevel: "debug"})
	require.NoError(t, err)
	require.NotNil(t, setup.Root)
	require.NoError(t, setup.Close())
}

// TestSetupLoggersRejectsUnknownLevel verifies a bad level name fails the
// whole setup rather than silently falling back.
func TestSetupLoggersRejectsUnknownLevel(t *testing.T) {
	_, err := SetupLoggers(LogConfig{DebugLevel: "bogus"})
	require.Error(t, err)
}

// TestSetupLoggersFileStream exercises the rotating file stream the daemon
// uses in quiet mode.
func TestSetupLoggersFileStream(t *testing.T) {
	setup, err := SetupLoggers(LogConfig{
		LogDir:     t.TempDir(),
		DebugLevel: "info",
		Quiet:      true,
	})
	require.NoError(t, err)

	setup.Root.Info("hello")
	require.NoError(t, setup.Close())
}

package build

import (
	"fmt"
	"os"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
	"github.com/roasbeef/skillet/internal/permission"
	"github.com/roasbeef/skillet/internal/sandbox"
	"github.com/roasbeef/skillet/internal/skills"
	"github.com/roasbeef/skillet/internal/subproc"
)

// Subsystem tags for the per-package loggers.
const (
	SubPermission = "PERM"
	SubSandbox    = "SBOX"
	SubSubproc    = "SPRC"
	SubSkills     = "SKLL"
)

// LogConfig configures the process-wide logging setup.
type LogConfig struct {
	// LogDir is where the rotating log file lives. Empty disables file
	// logging and keeps console output only.
	LogDir string

	// DebugLevel is the log level name applied to all subsystems, e.g.
	// "debug" or "info".
	DebugLevel string

	// Quiet suppresses console output, leaving the file stream only.
	Quiet bool
}

// LogSetup owns the process logging backends.
type LogSetup struct {
	rotator *RotatingLogWriter
	handler *HandlerSet

	// Root is the root logger; subsystem loggers are derived from it.
	Root btclogv2.Logger
}

// SetupLoggers builds the dual-stream logging backend (console plus
// rotating file), derives a tagged sub-logger for every subsystem, and
// hands each package its logger. Call Close on shutdown to flush the file
// stream.
func SetupLoggers(cfg LogConfig) (*LogSetup, error) {
	setup := &LogSetup{}

	var handlers []btclogv2.Handler
	if !cfg.Quiet {
		handlers = append(handlers, btclogv2.NewDefaultHandler(
			os.Stderr,
		))
	}

	if cfg.LogDir != "" {
		setup.rotator = NewRotatingLogWriter()
		rotCfg := DefaultLogRotatorConfig()
		rotCfg.LogDir = cfg.LogDir
		if err := setup.rotator.InitLogRotator(rotCfg); err != nil {
			return nil, err
		}

		handlers = append(handlers, btclogv2.NewDefaultHandler(
			setup.rotator, btclogv2.WithNoTimestamp(),
		))
	}

	setup.handler = NewHandlerSet(handlers...)

	level := btclog.LevelInfo
	if cfg.DebugLevel != "" {
		parsed, ok := btclog.LevelFromString(cfg.DebugLevel)
		if !ok {
			return nil, fmt.Errorf("unknown log level %q",
				cfg.DebugLevel)
		}
		level = parsed
	}
	setup.handler.SetLevel(level)

	setup.Root = btclogv2.NewSLogger(setup.handler)

	sub := func(tag string) btclogv2.Logger {
		return btclogv2.NewSLogger(setup.handler.SubSystem(tag))
	}
	permission.UseLogger(sub(SubPermission))
	sandbox.UseLogger(sub(SubSandbox))
	subproc.UseLogger(sub(SubSubproc))
	skills.UseLogger(sub(SubSkills))

	return setup, nil
}

// Close flushes and stops the file log stream.
func (s *LogSetup) Close() error {
	if s.rotator != nil {
		return s.rotator.Close()
	}

	return nil
}

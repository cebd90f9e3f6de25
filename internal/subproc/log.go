package subproc

import (
	btclog "github.com/btcsuite/btclog/v2"
)

// log is the package-level logger, wired at startup via UseLogger.
var log = btclog.Disabled

// UseLogger sets the package logger.
func UseLogger(logger btclog.Logger) {
	log = logger
}

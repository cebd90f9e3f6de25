package permission

import (
	btclog "github.com/btcsuite/btclog/v2"
)

// log is the package-level logger. Disabled by default; the daemon or CLI
// wires a real logger at startup via UseLogger.
var log = btclog.Disabled

// UseLogger sets the package logger.
func UseLogger(logger btclog.Logger) {
	log = logger
}

package avalanche

import (
	"github.com/btcsuite/btclog"
	"github.com/ecash-avalanche/peermgr/build"
)

// log is the package-wide logger, disabled until UseLogger is called by the
// application wiring up this package.
var log btclog.Logger

func init() {
	UseLogger(build.NewSubLogger("AVAL", nil))
}

// DisableLog disables all library log output.
func DisableLog() {
	log = btclog.Disabled
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}

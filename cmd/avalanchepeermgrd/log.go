package main

import (
	"github.com/ecash-avalanche/peermgr/avalanche"
	"github.com/ecash-avalanche/peermgr/avalanchrpc"
	"github.com/ecash-avalanche/peermgr/build"
)

var (
	logWriter = build.NewRotatingLogWriter()

	log = logWriter.GenSubLogger("PMGR")
)

// init wires every package's subsystem logger through the shared rotating
// writer, the same way lnd's log.go binds each package's UseLogger to a
// backend-derived logger sharing one file.
func init() {
	avalanche.UseLogger(logWriter.GenSubLogger("AVAL"))
	avalanchrpc.UseLogger(logWriter.GenSubLogger("AVRPC"))
	logWriter.RegisterSubLogger("PMGR", log)
}

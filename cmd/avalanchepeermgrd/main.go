// Command avalanchepeermgrd wires configuration, logging and the avalanche
// peer manager into a minimal standalone daemon, in the shape of lnd's own
// cmd/lnd/main.go: load config, then hand off to a "real" main that returns
// an error instead of exiting directly.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/wire"
	flags "github.com/jessevdk/go-flags"

	"github.com/ecash-avalanche/peermgr/avalanche"
	"github.com/ecash-avalanche/peermgr/avalanchrpc"
	"github.com/ecash-avalanche/peermgr/build"
	"github.com/ecash-avalanche/peermgr/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := logWriter.InitLogRotator(&build.FileLoggerConfig{
		MaxLogFiles:    cfg.MaxLogFiles,
		MaxLogFileSize: cfg.MaxLogFileSize,
	}, filepath.Join(cfg.LogDir, "avalanchepeermgrd.log")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logWriter.Close()

	if err := build.ParseAndSetDebugLevels(cfg.DebugLevel, logWriter); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run constructs the manager and RPC façade and then blocks forever; it has
// no shutdown path of its own.
// It never itself installs a real coin oracle or proof verifier: those are
// the connection points to whatever full node embeds this daemon, and a
// standalone binary has nothing to bind them to. rejectAllOracle exists so
// the daemon starts and answers RPC calls in isolation (e.g. for smoke
// testing avalanchrpc against an empty manager); a production embedding
// replaces mgrCfg.CoinLookup and mgrCfg.Verifier before calling
// avalanche.NewManager.
func run(cfg *config.Config) error {
	mgrCfg := cfg.ManagerConfig()
	mgrCfg.CoinLookup = rejectAllOracle{}
	mgrCfg.Verifier = rejectAllOracle{}

	mgr, err := avalanche.NewManager(mgrCfg)
	if err != nil {
		return err
	}

	srv := avalanchrpc.New(mgr)
	_ = srv // wired to a transport by the embedding application.

	log.Infof("avalanche peer manager started, rpc facade listening on %s (unbound)",
		cfg.RPCListen)

	select {}
}

// rejectAllOracle is the standalone binary's placeholder CoinLookup and
// ProofVerifier: every proof it's asked about is treated as missing and
// invalid. It exists purely so avalanchepeermgrd can start without a live
// chain connection; no real deployment should rely on it.
type rejectAllOracle struct{}

func (rejectAllOracle) LookupCoin(wire.OutPoint) (avalanche.CoinStatus, bool) {
	return avalanche.CoinStatus{}, false
}

func (rejectAllOracle) Verify(*avalanche.Proof, avalanche.CoinLookup) error {
	return fmt.Errorf("avalanchepeermgrd: no proof verifier configured")
}

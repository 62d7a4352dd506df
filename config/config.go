// Package config parses avalanchepeermgrd's command-line and INI
// configuration surface, in the same load order lnd's config.go follows:
// defaults, then a config-file pass, then a final command-line pass so CLI
// flags take precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/ecash-avalanche/peermgr/avalanche"
	"github.com/ecash-avalanche/peermgr/build"
)

const (
	defaultConfigFilename = "avalanchepeermgrd.conf"
	defaultLogFilename    = "avalanchepeermgrd.log"
	defaultLogLevel       = "info"
	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10
)

// Config is the full avalanchepeermgrd configuration surface.
type Config struct {
	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`

	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"The directory to store peer manager state within"`
	LogDir     string `long:"logdir" description:"Directory to log output"`

	MaxLogFiles    int    `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum logfile size in MB"`
	DebugLevel     string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <global-level>,<subsystem>=<level>,... to set individual subsystem levels"`

	AvalancheConflictingProofCooldown time.Duration `long:"avalancheconflictingproofcooldown" description:"Minimum time a peer must hold its slot before a conflicting proof may challenge it"`
	EnableAvalancheProofReplacement   bool          `long:"enableavalancheproofreplacement" description:"Allow the conflicting-proof pool to promote a waiting entry back to peer status"`
	MaxAvalancheOrphanProofs          int           `long:"maxavalancheorphanproofs" description:"Maximum number of orphaned proofs retained pending chain data"`
	MaxAvalancheConflictingProofs     int           `long:"maxavalancheconflictingproofs" description:"Maximum number of conflicting proofs retained for possible promotion"`

	RPCListen string `long:"avalancherpclisten" description:"Interface/port for the avalanche peer manager's RPC façade"`
}

// DefaultConfig returns a Config populated with the daemon's logging and RPC
// defaults plus avalanche's recommended cooldown and pool bounds. None of
// the avalanche values are applied by avalanche.Config.setDefaults, which
// leaves a zero cooldown and zero (unbounded) pool sizes as they are.
func DefaultConfig() Config {
	return Config{
		ConfigFile:                        defaultConfigFilename,
		LogDir:                            "logs",
		MaxLogFiles:                       defaultMaxLogFiles,
		MaxLogFileSize:                    defaultMaxLogFileSize,
		DebugLevel:                        defaultLogLevel,
		AvalancheConflictingProofCooldown: avalanche.DefaultConflictingProofCooldown,
		MaxAvalancheOrphanProofs:          avalanche.DefaultMaxOrphanProofs,
		MaxAvalancheConflictingProofs:     avalanche.DefaultMaxConflictingProofs,
		RPCListen:                         "localhost:8827",
	}
}

// LoadConfig parses the command line and, if present, a config file,
// following lnd's convention: defaults, then config file, then command line
// again so flags win over file settings.
func LoadConfig() (*Config, error) {
	preCfg := DefaultConfig()
	if _, err := flags.Parse(&preCfg); err != nil {
		return nil, err
	}

	if preCfg.ShowVersion {
		fmt.Println(filepath.Base(os.Args[0]), "version", build.Version())
		os.Exit(0)
	}

	cfg := preCfg
	if err := flags.IniParse(cfg.ConfigFile, &cfg); err != nil {
		if _, ok := err.(*flags.IniError); ok {
			return nil, err
		}
		// A missing config file is not fatal; the file is optional.
	}

	if _, err := flags.Parse(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.AvalancheConflictingProofCooldown < 0 {
		return fmt.Errorf("avalancheconflictingproofcooldown must not be negative")
	}
	if cfg.MaxAvalancheOrphanProofs < 0 {
		return fmt.Errorf("maxavalancheorphanproofs must not be negative")
	}
	if cfg.MaxAvalancheConflictingProofs < 0 {
		return fmt.Errorf("maxavalancheconflictingproofs must not be negative")
	}
	return nil
}

// ManagerConfig translates the parsed CLI/file configuration into an
// avalanche.Config. CoinLookup, Verifier and RNG are left for the caller to
// fill in: they're runtime wiring, not something a flag can express.
func (c *Config) ManagerConfig() avalanche.Config {
	return avalanche.Config{
		ConflictingProofCooldown: c.AvalancheConflictingProofCooldown,
		EnableProofReplacement:   c.EnableAvalancheProofReplacement,
		MaxOrphanProofs:          c.MaxAvalancheOrphanProofs,
		MaxConflictingProofs:     c.MaxAvalancheConflictingProofs,
	}
}

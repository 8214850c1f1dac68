// Package config provides a go-simpler.org/env configuration table for
// nostrkit, grounded directly on the teacher's app/config.New (env.Load
// plus an xdg-resolved data directory). Unlike the teacher, this module
// is a library, not a relay daemon — there is no listen address or
// per-request auth flag to read, only the knobs the host facade (pkg/host)
// needs to open its cache and dial relays.
package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
	"go-simpler.org/env"

	"nostrkit.dev/pkg/utils/chk"
	"nostrkit.dev/pkg/utils/log"
)

// C is nostrkit's process-wide configuration, read from the environment
// if present.
type C struct {
	AppName      string   `env:"NOSTRKIT_APP_NAME" default:"nostrkit"`
	DataDir      string   `env:"NOSTRKIT_DATA_DIR" usage:"on-disk L2 cache directory"`
	LogLevel     string   `env:"NOSTRKIT_LOG_LEVEL" default:"info" usage:"trace debug info warn error"`
	Relays       []string `env:"NOSTRKIT_RELAYS" usage:"default relay set used when a call site supplies none"`
	MaxL1Items   int64    `env:"NOSTRKIT_CACHE_L1_ITEMS" default:"100000"`
	MaxL1Bytes   int64    `env:"NOSTRKIT_CACHE_L1_BYTES" default:"67108864"`
	MaxL2Bytes   int64    `env:"NOSTRKIT_CACHE_L2_BYTES" default:"1073741824"`
}

// New loads C from the environment, defaulting DataDir to the XDG data
// home the way the teacher's config.New defaults its own DataDir.
func New() (cfg *C, err error) {
	cfg = &C{}
	if err = env.Load(cfg, &env.Options{SliceSep: ","}); chk.E(err) {
		return nil, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(xdg.DataHome, cfg.AppName)
	}
	log.SetLevel(parseLevel(cfg.LogLevel))
	return cfg, nil
}

func parseLevel(s string) log.Level {
	switch s {
	case "trace":
		return log.Trace
	case "debug":
		return log.Debug
	case "warn":
		return log.Warn
	case "error":
		return log.Error
	default:
		return log.Info
	}
}

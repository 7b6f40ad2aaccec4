// Package config loads modprobe's runtime settings the way pug's
// internal/app/config.go does: flags override environment variables,
// which override a YAML config file, via github.com/peterbourgon/ff/v4.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/peterbourgon/ff/v4/ffyaml"
)

// Config holds modprobe's runtime settings.
type Config struct {
	MaxTasks          int
	Timing            bool
	ModprobePath      string
	DisableJobCleanup bool
	LogLevel          string
}

// Parse builds a Config from args, in order of precedence: flags > env
// vars (prefix FLUX_MODPROBE, except DisableJobCleanup which uses the
// bare FLUX_DISABLE_JOB_CLEANUP name per spec.md §6) > the config file
// named by -config (default "modprobe.yaml").
func Parse(args []string) (Config, error) {
	var cfg Config

	fs := ff.NewFlagSet("modprobe")
	fs.IntVar(&cfg.MaxTasks, 't', "max-tasks", 2*runtime.NumCPU(), "Maximum number of parallel tasks.")
	fs.BoolVar(&cfg.Timing, 0, "timing", false, "Enable timing capture.")
	fs.StringVar(&cfg.ModprobePath, 0, "modprobe-path", "", "Colon-separated directories scanned for modules.d/*.toml overlays.")
	fs.StringEnumVar(&cfg.LogLevel, 'l', "log-level", "Logging level.", "info", "debug", "warn", "error")
	_ = fs.String('c', "config", "modprobe.yaml", "Path to config file.")
	fs.BoolVar(&cfg.DisableJobCleanup, 0, "disable-job-cleanup", false, "Skip registering the job-manager cleanup task.")

	err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("FLUX_MODPROBE"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parse),
		ff.WithConfigAllowMissingFile(),
	)
	if errors.Is(err, ff.ErrHelp) {
		fmt.Fprintln(os.Stderr, ffhelp.Flags(fs))
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}

	if os.Getenv("FLUX_DISABLE_JOB_CLEANUP") != "" {
		cfg.DisableJobCleanup = true
	}
	return cfg, nil
}

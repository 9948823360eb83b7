package config

import (
	"flag"
	"strings"
)

// Flags holds command-line overrides. Zero values leave the loaded config
// untouched.
type Flags struct {
	Config  string
	Debug   bool
	LogFile string
	Steps   string
	Hint    string
	Workers int
	GRF     stringList
}

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// Register binds the common flags to fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.Config, "config", "", "Path to config file (.yaml, .yml or .toml)")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.LogFile, "log-file", "", "Also write logs to this rotating file")
	fs.StringVar(&f.Steps, "steps", "", "Comma-separated post-processing steps")
	fs.StringVar(&f.Hint, "hint", "", "Force a format by name")
	fs.IntVar(&f.Workers, "workers", 0, "Concurrent imports for batch")
	fs.Var(&f.GRF, "grf", "GRF archive to read from (repeatable)")
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.LogFile != "" {
		cfg.Logging.LogFile = f.LogFile
	}
	if f.Steps != "" {
		cfg.Import.Steps = strings.Split(f.Steps, ",")
	}
	if f.Hint != "" {
		cfg.Import.FormatHint = f.Hint
	}
	if f.Workers > 0 {
		cfg.Batch.Workers = f.Workers
	}
	if len(f.GRF) > 0 {
		cfg.Data.GRFPaths = append([]string(nil), f.GRF...)
	}
}

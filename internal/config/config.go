// Package config handles scenetool configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/Faultbox/scenery/pkg/importer"
	"github.com/Faultbox/scenery/pkg/postprocess"
	"github.com/Faultbox/scenery/pkg/props"
)

// Config holds all tool settings.
type Config struct {
	Import  ImportConfig  `yaml:"import" toml:"import"`
	Batch   BatchConfig   `yaml:"batch" toml:"batch"`
	Watch   WatchConfig   `yaml:"watch" toml:"watch"`
	Data    DataConfig    `yaml:"data" toml:"data"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ImportConfig holds the defaults applied to every import.
type ImportConfig struct {
	Steps       []string `yaml:"steps" toml:"steps"`
	FormatHint  string   `yaml:"format_hint" toml:"format_hint"`
	MaxFileSize int64    `yaml:"max_file_size" toml:"max_file_size"` // bytes, 0 = library default
	Charset     string   `yaml:"charset" toml:"charset"`
	// Properties are passed to formats and steps verbatim, e.g.
	// "pp.gen_normals.max_angle: 80".
	Properties map[string]any `yaml:"properties,omitempty" toml:"properties,omitempty"`
}

// BatchConfig holds settings for concurrent imports.
type BatchConfig struct {
	Workers  int  `yaml:"workers" toml:"workers"`
	FailFast bool `yaml:"fail_fast" toml:"fail_fast"`
}

// WatchConfig holds settings for the watch command.
type WatchConfig struct {
	DebounceMS int      `yaml:"debounce_ms" toml:"debounce_ms"`
	Extensions []string `yaml:"extensions" toml:"extensions"` // empty = every supported extension
}

// DataConfig holds asset source paths.
type DataConfig struct {
	GRFPaths []string `yaml:"grf_paths" toml:"grf_paths"` // Paths to GRF archives
	Root     string   `yaml:"root" toml:"root"`           // Directory for relative file names
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Import: ImportConfig{
			Steps: []string{string(postprocess.IDValidate)},
		},
		Batch: BatchConfig{
			Workers: 4,
		},
		Watch: WatchConfig{
			DebounceMS: 250,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ErrInvalid is matched by every error returned from Validate.
var ErrInvalid = errors.New("invalid config")

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate reports every out-of-range setting at once.
func (c *Config) Validate() error {
	var err error
	if c.Batch.Workers < 1 {
		err = multierr.Append(err, fmt.Errorf("%w: batch.workers must be at least 1, got %d", ErrInvalid, c.Batch.Workers))
	}
	if c.Watch.DebounceMS < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: watch.debounce_ms is negative", ErrInvalid))
	}
	if c.Import.MaxFileSize < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: import.max_file_size is negative", ErrInvalid))
	}
	if !validLevel(c.Logging.Level) {
		err = multierr.Append(err, fmt.Errorf("%w: logging.level %q is not one of %s", ErrInvalid, c.Logging.Level, strings.Join(logLevels, ", ")))
	}
	if _, perr := props.FromMap(c.Import.Properties); perr != nil {
		err = multierr.Append(err, fmt.Errorf("%w: import.properties: %v", ErrInvalid, perr))
	}
	return err
}

func validLevel(level string) bool {
	for _, l := range logLevels {
		if strings.EqualFold(level, l) {
			return true
		}
	}
	return false
}

// StepIDs returns the configured post-processing steps.
func (c *Config) StepIDs() []postprocess.ID {
	ids := make([]postprocess.ID, 0, len(c.Import.Steps))
	for _, s := range c.Import.Steps {
		if s = strings.TrimSpace(s); s != "" {
			ids = append(ids, postprocess.ID(s))
		}
	}
	return ids
}

// ImportProperties builds the import configuration store handed to the
// importer. Typed settings override same-named entries of Properties.
func (c *Config) ImportProperties() (*props.Store, error) {
	store, err := props.FromMap(c.Import.Properties)
	if err != nil {
		return nil, fmt.Errorf("import.properties: %w", err)
	}
	if c.Import.FormatHint != "" {
		store.SetString(importer.ConfigKeyFormatHint, c.Import.FormatHint)
	}
	if c.Import.MaxFileSize > 0 {
		store.SetInt(importer.ConfigKeyMaxFileSize, c.Import.MaxFileSize)
	}
	if c.Import.Charset != "" {
		store.SetString(importer.ConfigKeyCharset, c.Import.Charset)
	}
	return store, nil
}

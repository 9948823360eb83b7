// scenetool is a CLI utility for importing, inspecting and validating 3D
// asset files.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/scenery/internal/config"
	"github.com/Faultbox/scenery/internal/logger"
	"github.com/Faultbox/scenery/pkg/assetimport"
	"github.com/Faultbox/scenery/pkg/props"
	"github.com/Faultbox/scenery/pkg/vfs"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "formats":
		err = cmdFormats(args, os.Stdout)
	case "info":
		err = cmdInfo(args, os.Stdout)
	case "validate", "check":
		err = cmdValidate(args, os.Stdout)
	case "batch":
		err = cmdBatch(args, os.Stdout)
	case "watch":
		err = cmdWatch(args, os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage(os.Stderr)
		os.Exit(1)
	}

	logger.Sync()
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			fmt.Fprintln(os.Stderr, err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `scenetool - 3D asset import utility

Usage:
  scenetool <command> [options]

Commands:
  formats                        List supported formats and post-processing steps
  info [options] <file>          Import a file and print its scene
  validate [options] <file>...   Import files and report invariant violations
  batch [options] <file>...      Import many files concurrently
  watch [options] <dir>          Re-import files in dir whenever they change

Common options:
  -config <path>   Config file (.yaml, .yml or .toml)
  -steps a,b       Post-processing steps, e.g. triangulate,gen-normals
  -hint <format>   Force a format by name
  -grf <archive>   Read files from a GRF archive (repeatable)
  -workers <n>     Concurrent imports for batch
  -debug           Enable debug logging
  -log-file <path> Also write logs to a rotating file

Examples:
  scenetool formats
  scenetool info -steps triangulate,gen-normals model.gltf
  scenetool info -grf data.grf data/model/prontera/tree.rsm
  scenetool batch -workers 8 models/*.irrmesh
  scenetool watch ./assets`)
}

type usageError string

func (e usageError) Error() string { return "Usage: scenetool " + string(e) }

// env is what every import command needs: the loaded config, an importer
// reading from the configured file system, and the import properties.
type env struct {
	cfg   *config.Config
	imp   *assetimport.Importer
	props *props.Store
	log   *zap.Logger
	close func() error
}

// setup parses args with the common flags, loads the config and initialises
// logging. It returns the remaining arguments.
func setup(name string, args []string) (*env, []string, error) {
	var flags config.Flags
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.Register(fs)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(&flags)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return nil, nil, err
	}

	store, err := cfg.ImportProperties()
	if err != nil {
		return nil, nil, err
	}

	e := &env{
		cfg:   cfg,
		props: store,
		log:   logger.Component(name),
		close: func() error { return nil },
	}

	var sys vfs.System = vfs.DirSystem{Root: cfg.Data.Root}
	if len(cfg.Data.GRFPaths) > 0 {
		grfs, err := vfs.OpenGRFSystem(cfg.Data.GRFPaths...)
		if err != nil {
			return nil, nil, err
		}
		sys = grfs
		e.close = grfs.Close
	}

	e.imp = assetimport.New(
		assetimport.WithSystem(sys),
		assetimport.WithLogger(logger.Log),
	)
	return e, fs.Args(), nil
}

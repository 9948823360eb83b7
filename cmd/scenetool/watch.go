package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/scenery/pkg/assetimport"
	"github.com/Faultbox/scenery/pkg/importer"
	"github.com/Faultbox/scenery/pkg/postprocess"
	"github.com/Faultbox/scenery/pkg/props"
	"github.com/Faultbox/scenery/pkg/vfs"
)

func cmdWatch(args []string, out io.Writer) error {
	e, dirs, err := setup("watch", args)
	if err != nil {
		return err
	}
	defer e.close()
	if len(dirs) != 1 {
		return usageError("watch [options] <dir>")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w, err := newWatcher(e, dirs[0], out)
	if err != nil {
		return err
	}
	defer w.Close()

	fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", w.dir)
	return w.Run(ctx)
}

// watcher re-imports files in one directory after they stop changing.
type watcher struct {
	dir      string
	fsw      *fsnotify.Watcher
	imp      *assetimport.Importer
	steps    []postprocess.ID
	props    *props.Store
	exts     []string
	debounce time.Duration
	out      io.Writer
	log      *zap.Logger

	ready   chan string
	done    chan struct{}
	pending map[string]*time.Timer
}

func newWatcher(e *env, dir string, out io.Writer) (*watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(abs); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", abs, err)
	}
	return &watcher{
		dir: abs,
		fsw: fsw,
		// Events carry absolute disk paths, whatever the configured source.
		imp:      assetimport.New(assetimport.WithSystem(vfs.DirSystem{}), assetimport.WithLogger(e.log)),
		steps:    e.cfg.StepIDs(),
		props:    e.props,
		exts:     e.cfg.Watch.Extensions,
		debounce: time.Duration(e.cfg.Watch.DebounceMS) * time.Millisecond,
		out:      out,
		log:      e.log,
		ready:    make(chan string, 16),
		done:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Close stops watching and cancels pending imports.
func (w *watcher) Close() error {
	for _, t := range w.pending {
		t.Stop()
	}
	close(w.done)
	return w.fsw.Close()
}

// Run handles events until ctx is done or the watcher fails.
func (w *watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watch error", zap.Error(err))
		case name := <-w.ready:
			delete(w.pending, name)
			w.reimport(name)
		}
	}
}

func (w *watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if !w.wanted(ev.Name) {
		return
	}
	w.log.Debug("file changed", zap.String("file", ev.Name), zap.Stringer("op", ev.Op))
	if t, ok := w.pending[ev.Name]; ok {
		t.Reset(w.debounce)
		return
	}
	name := ev.Name
	w.pending[name] = time.AfterFunc(w.debounce, func() {
		select {
		case w.ready <- name:
		case <-w.done:
		}
	})
}

func (w *watcher) wanted(name string) bool {
	ext := importer.ExtensionOf(name)
	if ext == "" {
		return false
	}
	if len(w.exts) == 0 {
		return w.imp.IsExtensionSupported(ext)
	}
	for _, e := range w.exts {
		if strings.EqualFold(strings.TrimPrefix(e, "."), ext) {
			return true
		}
	}
	return false
}

func (w *watcher) reimport(name string) {
	rel, err := filepath.Rel(w.dir, name)
	if err != nil {
		rel = name
	}
	start := time.Now()
	sc, err := w.imp.ReadFile(name, w.steps, w.props)
	if err != nil {
		fmt.Fprintf(w.out, "FAIL  %s (%s): %v\n", rel, assetimport.StageOf(err), err)
		return
	}
	st := sc.Stats()
	sc.Release()
	fmt.Fprintf(w.out, "ok    %s %d meshes %d vertices %s\n", rel, st.Meshes, st.Vertices, time.Since(start).Round(time.Millisecond))
}

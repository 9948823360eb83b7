package importer

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Registry holds the format plugins in registration order. It is filled at
// startup and sealed before concurrent use; once sealed it is read-only and
// safe for concurrent Select calls.
type Registry struct {
	mu      sync.RWMutex
	formats []Format
	infos   []Info
	byName  map[string]int
	byExt   map[string][]int
	sealed  bool
	logger  *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byName: make(map[string]int),
		byExt:  make(map[string][]int),
		logger: logger.With(zap.String("component", "format_registry")),
	}
}

// Register adds f. Two formats may claim the same extension only if both
// can be told apart by signature.
func (r *Registry) Register(f Format) error {
	if f == nil {
		return fmt.Errorf("%w: nil", ErrInvalidFormat)
	}
	info := f.Info()
	if info.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidFormat)
	}
	key := strings.ToLower(info.Name)
	exts := make([]string, 0, len(info.Extensions))
	for _, e := range info.Extensions {
		if e = normalizeExt(e); e != "" {
			exts = append(exts, e)
		}
	}
	info.Extensions = exts

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register %s", ErrRegistrySealed, info.Name)
	}
	if _, exists := r.byName[key]; exists {
		return fmt.Errorf("%w: %s", ErrFormatAlreadyRegistered, info.Name)
	}
	for _, ext := range exts {
		for _, idx := range r.byExt[ext] {
			other := r.infos[idx]
			if !other.SupportsSignature || !info.SupportsSignature {
				return fmt.Errorf("%w: .%s by %s and %s", ErrExtensionConflict, ext, other.Name, info.Name)
			}
		}
	}

	idx := len(r.formats)
	r.formats = append(r.formats, f)
	r.infos = append(r.infos, info)
	r.byName[key] = idx
	for _, ext := range exts {
		r.byExt[ext] = append(r.byExt[ext], idx)
	}

	r.logger.Debug("format registered",
		zap.String("name", info.Name),
		zap.Strings("extensions", exts),
		zap.Bool("signature", info.SupportsSignature))
	return nil
}

// MustRegister is Register that panics on error, for init-time wiring.
func (r *Registry) MustRegister(formats ...Format) {
	for _, f := range formats {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
}

// Seal makes the registry immutable.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Formats returns the registered formats in registration order.
func (r *Registry) Formats() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, len(r.infos))
	copy(out, r.infos)
	return out
}

// Lookup returns the format registered under name, ignoring case.
func (r *Registry) Lookup(name string) (Format, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return r.formats[idx], true
}

// Extensions returns every claimed extension, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// IsExtensionSupported reports whether some format claims ext. A leading
// dot or a full file name are accepted.
func (r *Registry) IsExtensionSupported(ext string) bool {
	if strings.ContainsAny(ext, `./\`) {
		ext = ExtensionOf(ext)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byExt[strings.ToLower(ext)]) > 0
}

// Select picks the format for name. With a hint only that format is tried.
// Otherwise formats claiming the extension are tried in registration order,
// then every signature-capable format in registration order. The first
// acceptance wins, so equal inputs always select the same format.
func (r *Registry) Select(name string, probe Probe, hint string) (Format, error) {
	r.Seal()

	if hint != "" {
		f, ok := r.Lookup(hint)
		if !ok {
			return nil, fmt.Errorf("%w: unknown format %q", ErrNoMatchingFormat, hint)
		}
		if !r.canRead(f, name, probe, true) {
			return nil, fmt.Errorf("%w: %s rejected %s", ErrNoMatchingFormat, f.Info().Name, name)
		}
		r.logger.Debug("format selected", zap.String("file", name), zap.String("format", f.Info().Name), zap.String("by", "hint"))
		return f, nil
	}

	ext := ExtensionOf(name)
	if ext != "" {
		for _, idx := range r.byExt[ext] {
			f, info := r.formats[idx], r.infos[idx]
			if !r.canRead(f, name, probe, false) {
				continue
			}
			if info.SupportsSignature && !r.canRead(f, name, probe, true) {
				continue
			}
			r.logger.Debug("format selected", zap.String("file", name), zap.String("format", info.Name), zap.String("by", "extension"))
			return f, nil
		}
	}

	for idx, f := range r.formats {
		info := r.infos[idx]
		if !info.SupportsSignature {
			continue
		}
		if r.canRead(f, name, probe, true) {
			r.logger.Debug("format selected", zap.String("file", name), zap.String("format", info.Name), zap.String("by", "signature"))
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoMatchingFormat, name)
}

// canRead treats a panicking CanRead as a negative answer.
func (r *Registry) canRead(f Format, name string, probe Probe, checkSig bool) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("format panicked in CanRead",
				zap.String("format", f.Info().Name),
				zap.String("file", name),
				zap.Any("panic", p))
			ok = false
		}
	}()
	return f.CanRead(name, probe, checkSig)
}

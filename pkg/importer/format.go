// Package importer selects a format plugin for a file and drives it to fill a
// fresh scene. Plugins depend on this package only through Format,
// ReadContext and Probe.
package importer

import (
	"bytes"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/scenery/pkg/props"
	"github.com/Faultbox/scenery/pkg/scene"
	"github.com/Faultbox/scenery/pkg/vfs"
)

// ProbeSize is the number of leading bytes handed to CanRead.
const ProbeSize = 1024

// MaxFileSize is the default cap for ReadContext.ReadAll.
const MaxFileSize = 512 << 20

// Import configuration keys read by the dispatcher.
const (
	ConfigKeyMaxFileSize = "import.max_file_size"
	ConfigKeyFormatHint  = "import.format_hint"
	ConfigKeyCharset     = "import.charset"
)

// InfoFlags describe a format.
type InfoFlags uint32

const (
	FlagText InfoFlags = 1 << iota
	FlagBinary
	FlagCompressed
	FlagExperimental
)

// Info describes a format plugin.
type Info struct {
	Name        string
	Description string
	// Extensions are lower-case without the leading dot.
	Extensions []string
	// SupportsSignature is set when CanRead can recognise the file from its
	// leading bytes alone.
	SupportsSignature bool
	Flags             InfoFlags
}

// HasExtension reports whether ext (with or without dot, any case) is listed.
func (i Info) HasExtension(ext string) bool {
	ext = normalizeExt(ext)
	for _, e := range i.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Format is a per-format parser plugin. Implementations must be stateless
// between calls and safe for concurrent use.
type Format interface {
	Info() Info
	// CanRead answers cheaply whether the plugin can read the file. With
	// checkSig false only the name may be considered; with checkSig true
	// the probe must be inspected. It must not fail on malformed data.
	CanRead(name string, probe Probe, checkSig bool) bool
	// Read fills sc from the file. On error sc is discarded by the caller.
	Read(ctx *ReadContext, sc *scene.Scene) error
}

// Probe holds the first ProbeSize bytes of a file.
type Probe struct {
	data []byte
}

// NewProbe wraps data, truncated to ProbeSize.
func NewProbe(data []byte) Probe {
	if len(data) > ProbeSize {
		data = data[:ProbeSize]
	}
	return Probe{data: data}
}

// Bytes returns the probed bytes. The slice must not be modified.
func (p Probe) Bytes() []byte { return p.data }

// Len returns the number of probed bytes.
func (p Probe) Len() int { return len(p.data) }

// HasPrefix reports whether the file starts with magic.
func (p Probe) HasPrefix(magic string) bool {
	return bytes.HasPrefix(p.data, []byte(magic))
}

// ContainsToken reports whether any token occurs in the probe, ignoring
// ASCII case. NUL bytes are skipped so UTF-16 text still matches.
func (p Probe) ContainsToken(tokens ...string) bool {
	buf := make([]byte, 0, len(p.data))
	for _, b := range p.data {
		if b != 0 {
			buf = append(buf, b)
		}
	}
	lower := bytes.ToLower(buf)
	for _, tok := range tokens {
		if tok != "" && bytes.Contains(lower, []byte(strings.ToLower(tok))) {
			return true
		}
	}
	return false
}

// ReadContext is what a plugin sees while reading one file.
type ReadContext struct {
	Name   string
	System vfs.System
	File   vfs.File
	Config *props.Store
	Logger *zap.Logger

	format  string
	maxSize int64
}

// ReadAll reads the whole file, bounded by the configured size cap.
func (c *ReadContext) ReadAll() ([]byte, error) {
	return vfs.ReadAll(c.File, c.Name, c.maxSize)
}

// Errorf builds a *ParseError for the current format.
func (c *ReadContext) Errorf(format string, args ...any) error {
	return &ParseError{Format: c.format, Reason: fmt.Sprintf(format, args...)}
}

// Wrap builds a *ParseError for the current format around err.
func (c *ReadContext) Wrap(err error, reason string) error {
	return &ParseError{Format: c.format, Reason: reason, Err: err}
}

// ExtensionOf returns the lower-case extension of name without the dot,
// using the last dot of the last path element.
func ExtensionOf(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

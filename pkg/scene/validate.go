package scene

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/Faultbox/scenery/pkg/props"
)

// ErrInvalidScene is matched by every *ValidationError.
var ErrInvalidScene = errors.New("invalid scene")

// Violation is one broken invariant. Path locates the offending element,
// e.g. "meshes[2].faces[7]".
type Violation struct {
	Path    string
	Message string
}

func (v Violation) Error() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// ValidationError carries every violation found by one validation pass.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	errs := make([]error, len(e.Violations))
	for i, v := range e.Violations {
		errs[i] = v
	}
	return fmt.Sprintf("scene validation failed (%d violations): %v", len(e.Violations), multierr.Combine(errs...))
}

// Is makes errors.Is(err, ErrInvalidScene) true.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidScene }

// Has reports whether a violation with the given path exists.
func (e *ValidationError) Has(path string) bool {
	for _, v := range e.Violations {
		if v.Path == path {
			return true
		}
	}
	return false
}

// Check runs Validate and returns a *ValidationError when anything is wrong.
func (s *Scene) Check() error {
	if vs := s.Validate(); len(vs) > 0 {
		return &ValidationError{Violations: vs}
	}
	return nil
}

type validator struct {
	s   *Scene
	out []Violation
}

func (v *validator) addf(path, format string, args ...any) {
	v.out = append(v.out, Violation{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Validate checks every structural invariant and returns all violations
// found. An empty result means the scene is complete and consistent.
func (s *Scene) Validate() []Violation {
	v := &validator{s: s}
	v.nodes()
	v.meshes()
	v.materials()
	v.textures()
	v.animations()
	v.cameras()
	v.lights()
	return v.out
}

func (v *validator) nodes() {
	s := v.s
	if !s.valid(s.root) {
		v.addf("root", "scene has no root node")
		return
	}
	if p := s.nodes[s.root].parent; p != NoNode {
		v.addf("root", "root node has parent %d", p)
	}

	for i, n := range s.nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if n == nil {
			v.addf(path, "nil node")
			continue
		}
		for j, mi := range n.Meshes {
			if mi < 0 || mi >= len(s.meshes) {
				v.addf(fmt.Sprintf("%s.meshes[%d]", path, j), "mesh index %d out of range [0,%d)", mi, len(s.meshes))
			}
		}
		counts := make(map[NodeID]int, len(n.children))
		for _, c := range n.children {
			counts[c]++
			if !s.valid(c) {
				v.addf(path, "child id %d out of range", c)
				continue
			}
			if s.nodes[c].parent != NodeID(i) {
				v.addf(path, "child %d has parent %d", c, s.nodes[c].parent)
			}
		}
		for c, k := range counts {
			if k > 1 {
				v.addf(path, "child %d listed %d times", c, k)
			}
		}
		if NodeID(i) == s.root {
			continue
		}
		if !s.valid(n.parent) {
			v.addf(path, "non-root node has no parent")
			continue
		}
		if !containsID(s.nodes[n.parent].children, NodeID(i)) {
			v.addf(path, "node missing from parent %d child list", n.parent)
		}
	}

	reached := 0
	s.Walk(func(NodeID, int) bool { reached++; return true })
	if reached != len(s.nodes) {
		v.addf("nodes", "%d of %d nodes unreachable from the root or part of a cycle", len(s.nodes)-reached, len(s.nodes))
	}
}

func (v *validator) meshes() {
	s := v.s
	if len(s.meshes) == 0 && s.Flags&FlagIncomplete == 0 {
		v.addf("meshes", "scene has no meshes and is not flagged incomplete")
	}
	for i, m := range s.meshes {
		path := fmt.Sprintf("meshes[%d]", i)
		if m == nil {
			v.addf(path, "nil mesh")
			continue
		}
		n := m.NumVertices()
		if n == 0 {
			v.addf(path, "mesh has no vertices")
		}
		if len(m.Faces) == 0 {
			v.addf(path, "mesh has no faces")
		}
		for j, p := range m.Positions {
			if !p.IsFinite() {
				v.addf(fmt.Sprintf("%s.positions[%d]", path, j), "non-finite position")
				break
			}
		}
		v.attr(path+".normals", len(m.Normals), m.Normals != nil, n)
		v.attr(path+".tangents", len(m.Tangents), m.Tangents != nil, n)
		v.attr(path+".bitangents", len(m.Bitangents), m.Bitangents != nil, n)
		if (m.Tangents == nil) != (m.Bitangents == nil) {
			v.addf(path, "tangents and bitangents must be present together")
		}
		for ch := range m.UVs {
			if m.UVs[ch] == nil {
				continue
			}
			cpath := fmt.Sprintf("%s.uvs[%d]", path, ch)
			v.attr(cpath, len(m.UVs[ch]), true, n)
			if c := m.UVComponents[ch]; c < 1 || c > 3 {
				v.addf(cpath, "uv component count %d not in 1..3", c)
			}
		}
		for set := range m.Colors {
			if m.Colors[set] != nil {
				v.attr(fmt.Sprintf("%s.colors[%d]", path, set), len(m.Colors[set]), true, n)
			}
		}
		for j, f := range m.Faces {
			fpath := fmt.Sprintf("%s.faces[%d]", path, j)
			if len(f.Indices) == 0 {
				v.addf(fpath, "empty face")
				continue
			}
			for _, idx := range f.Indices {
				if int(idx) >= n {
					v.addf(fpath, "vertex index %d out of range [0,%d)", idx, n)
					break
				}
			}
		}
		if m.MaterialIndex != NoMaterial && (m.MaterialIndex < 0 || m.MaterialIndex >= len(s.materials)) {
			v.addf(path+".material", "material index %d out of range [0,%d)", m.MaterialIndex, len(s.materials))
		}
		for j, b := range m.Bones {
			for _, w := range b.Weights {
				if int(w.Vertex) >= n {
					v.addf(fmt.Sprintf("%s.bones[%d]", path, j), "weight references vertex %d out of range [0,%d)", w.Vertex, n)
					break
				}
			}
		}
	}
}

func (v *validator) attr(path string, got int, present bool, want int) {
	if present && got != want {
		v.addf(path, "length %d does not match vertex count %d", got, want)
	}
}

func (v *validator) materials() {
	s := v.s
	for i, mat := range s.materials {
		path := fmt.Sprintf("materials[%d]", i)
		if mat == nil || mat.Props == nil {
			v.addf(path, "nil material")
			continue
		}
		for _, ref := range mat.Textures() {
			tpath := fmt.Sprintf("%s.textures.%s.%d", path, ref.Type, ref.Slot)
			if ref.Path == "" {
				v.addf(tpath, "empty texture path")
			}
			if idx, ok := ref.EmbeddedIndex(); ok && idx >= len(s.textures) {
				v.addf(tpath, "embedded texture %d out of range [0,%d)", idx, len(s.textures))
			} else if !ok && strings.HasPrefix(ref.Path, props.EmbeddedPrefix) {
				v.addf(tpath, "malformed embedded texture path %q", ref.Path)
			}
			if ref.Mapping != props.MappingUV {
				continue
			}
			for mi, m := range s.meshes {
				if m != nil && m.MaterialIndex == i && !m.HasUVs(ref.UVChannel) {
					v.addf(tpath, "uv channel %d not provided by meshes[%d]", ref.UVChannel, mi)
				}
			}
		}
	}
}

func (v *validator) textures() {
	for i, t := range v.s.textures {
		path := fmt.Sprintf("textures[%d]", i)
		switch {
		case t == nil:
			v.addf(path, "nil texture")
		case len(t.Data) == 0:
			v.addf(path, "embedded texture has no data")
		case t.FormatHint == "" && len(t.Data) != t.Width*t.Height*4:
			v.addf(path, "raw texture is %d bytes, want %dx%dx4", len(t.Data), t.Width, t.Height)
		}
	}
}

func (v *validator) animations() {
	for i, a := range v.s.animations {
		path := fmt.Sprintf("animations[%d]", i)
		if a == nil {
			v.addf(path, "nil animation")
			continue
		}
		if a.Duration < 0 {
			v.addf(path, "negative duration %g", a.Duration)
		}
		if a.TicksPerSecond < 0 {
			v.addf(path, "negative ticks per second %g", a.TicksPerSecond)
		}
		for j, ch := range a.Channels {
			cpath := fmt.Sprintf("%s.channels[%d]", path, j)
			if v.s.FindNode(ch.NodeName) == NoNode {
				v.addf(cpath, "channel targets unknown node %q", ch.NodeName)
			}
			if !sortedVectorKeys(ch.PositionKeys) {
				v.addf(cpath+".position", "keys not sorted by time")
			}
			if !sortedQuatKeys(ch.RotationKeys) {
				v.addf(cpath+".rotation", "keys not sorted by time")
			}
			if !sortedVectorKeys(ch.ScalingKeys) {
				v.addf(cpath+".scaling", "keys not sorted by time")
			}
		}
	}
}

func (v *validator) cameras() {
	for i, c := range v.s.cameras {
		path := fmt.Sprintf("cameras[%d]", i)
		if c == nil {
			v.addf(path, "nil camera")
			continue
		}
		if c.Name != "" && v.s.FindNode(c.Name) == NoNode {
			v.addf(path, "camera %q has no matching node", c.Name)
		}
		if c.ClipNear <= 0 || c.ClipFar <= c.ClipNear {
			v.addf(path, "invalid clip planes near=%g far=%g", c.ClipNear, c.ClipFar)
		}
	}
}

func (v *validator) lights() {
	for i, l := range v.s.lights {
		path := fmt.Sprintf("lights[%d]", i)
		if l == nil {
			v.addf(path, "nil light")
			continue
		}
		if l.Name != "" && v.s.FindNode(l.Name) == NoNode {
			v.addf(path, "light %q has no matching node", l.Name)
		}
		if l.Type == LightUndefined {
			v.addf(path, "light type undefined")
		}
	}
}

func sortedVectorKeys(keys []VectorKey) bool {
	for i := 1; i < len(keys); i++ {
		if keys[i].Time < keys[i-1].Time {
			return false
		}
	}
	return true
}

func sortedQuatKeys(keys []QuatKey) bool {
	for i := 1; i < len(keys); i++ {
		if keys[i].Time < keys[i-1].Time {
			return false
		}
	}
	return true
}

func containsID(ids []NodeID, id NodeID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

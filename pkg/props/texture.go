package props

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TextureType is the semantic of a texture slot.
type TextureType uint8

const (
	TextureNone TextureType = iota
	TextureDiffuse
	TextureSpecular
	TextureAmbient
	TextureEmissive
	TextureHeight
	TextureNormals
	TextureShininess
	TextureOpacity
	TextureDisplacement
	TextureLightmap
	TextureReflection
	TextureBaseColor
	TextureMetalness
	TextureRoughness
	TextureUnknown
)

var textureTypeNames = [...]string{
	TextureNone:         "none",
	TextureDiffuse:      "diffuse",
	TextureSpecular:     "specular",
	TextureAmbient:      "ambient",
	TextureEmissive:     "emissive",
	TextureHeight:       "height",
	TextureNormals:      "normals",
	TextureShininess:    "shininess",
	TextureOpacity:      "opacity",
	TextureDisplacement: "displacement",
	TextureLightmap:     "lightmap",
	TextureReflection:   "reflection",
	TextureBaseColor:    "basecolor",
	TextureMetalness:    "metalness",
	TextureRoughness:    "roughness",
	TextureUnknown:      "unknown",
}

// String returns the name used inside texture keys.
func (t TextureType) String() string {
	if int(t) < len(textureTypeNames) {
		return textureTypeNames[t]
	}
	return fmt.Sprintf("TextureType(%d)", t)
}

// ParseTextureType is the inverse of TextureType.String.
func ParseTextureType(s string) (TextureType, bool) {
	for i, name := range textureTypeNames {
		if name == s {
			return TextureType(i), true
		}
	}
	return TextureNone, false
}

// Mapping describes how texture coordinates are produced for a slot.
type Mapping uint8

const (
	MappingUV Mapping = iota
	MappingSphere
	MappingCylinder
	MappingBox
	MappingPlane
	MappingOther
)

// String returns a human-readable mapping name.
func (m Mapping) String() string {
	switch m {
	case MappingUV:
		return "uv"
	case MappingSphere:
		return "sphere"
	case MappingCylinder:
		return "cylinder"
	case MappingBox:
		return "box"
	case MappingPlane:
		return "plane"
	default:
		return "other"
	}
}

// Texture slot sub-field key prefixes.
const (
	texFilePrefix    = "$tex.file"
	texMappingPrefix = "$tex.mapping"
	texUVPrefix      = "$tex.uvwsrc"
	texBlendPrefix   = "$tex.blend"
)

// EmbeddedPrefix marks a texture path that indexes the scene's embedded
// texture list ("*0", "*1", ...).
const EmbeddedPrefix = "*"

// TextureRef is one (type, slot) texture reference of a material.
type TextureRef struct {
	Type        TextureType
	Slot        int
	Path        string
	Mapping     Mapping
	UVChannel   int
	BlendFactor float64
}

// EmbeddedIndex returns the embedded texture index when Path has the form
// "*N".
func (r TextureRef) EmbeddedIndex() (int, bool) {
	if !strings.HasPrefix(r.Path, EmbeddedPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(r.Path[len(EmbeddedPrefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// TextureKey returns the key of a texture slot sub-field, e.g.
// TextureKey("$tex.file", TextureDiffuse, 1) == "$tex.file.diffuse.1".
func TextureKey(prefix string, t TextureType, slot int) string {
	return prefix + "." + t.String() + "." + strconv.Itoa(slot)
}

// SetTexture writes every sub-field of ref, replacing an existing reference
// with the same (type, slot).
func (s *Store) SetTexture(ref TextureRef) {
	s.SetString(TextureKey(texFilePrefix, ref.Type, ref.Slot), ref.Path)
	s.SetInt(TextureKey(texMappingPrefix, ref.Type, ref.Slot), int64(ref.Mapping))
	s.SetInt(TextureKey(texUVPrefix, ref.Type, ref.Slot), int64(ref.UVChannel))
	if ref.BlendFactor != 0 {
		s.SetFloat(TextureKey(texBlendPrefix, ref.Type, ref.Slot), ref.BlendFactor)
	} else {
		s.Delete(TextureKey(texBlendPrefix, ref.Type, ref.Slot))
	}
}

// Texture reads the reference stored for (t, slot).
func (s *Store) Texture(t TextureType, slot int) (TextureRef, error) {
	path, err := s.String(TextureKey(texFilePrefix, t, slot))
	if err != nil {
		return TextureRef{}, err
	}
	return TextureRef{
		Type:        t,
		Slot:        slot,
		Path:        path,
		Mapping:     Mapping(s.IntOr(TextureKey(texMappingPrefix, t, slot), int64(MappingUV))),
		UVChannel:   int(s.IntOr(TextureKey(texUVPrefix, t, slot), 0)),
		BlendFactor: s.FloatOr(TextureKey(texBlendPrefix, t, slot), 0),
	}, nil
}

// RemoveTexture deletes every sub-field of (t, slot).
func (s *Store) RemoveTexture(t TextureType, slot int) {
	for _, p := range []string{texFilePrefix, texMappingPrefix, texUVPrefix, texBlendPrefix} {
		s.Delete(TextureKey(p, t, slot))
	}
}

// TextureCount returns the number of slots of type t that hold a path.
func (s *Store) TextureCount(t TextureType) int {
	n := 0
	for _, ref := range s.Textures() {
		if ref.Type == t {
			n++
		}
	}
	return n
}

// Textures returns every texture reference ordered by type then slot.
func (s *Store) Textures() []TextureRef {
	var refs []TextureRef
	for e := range s.All() {
		t, slot, ok := parseTextureKey(e.Key)
		if !ok || e.Type != TypeString {
			continue
		}
		ref, err := s.Texture(t, slot)
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Type != refs[j].Type {
			return refs[i].Type < refs[j].Type
		}
		return refs[i].Slot < refs[j].Slot
	})
	return refs
}

func parseTextureKey(key string) (TextureType, int, bool) {
	rest, ok := strings.CutPrefix(key, texFilePrefix+".")
	if !ok {
		return TextureNone, 0, false
	}
	name, num, ok := strings.Cut(rest, ".")
	if !ok {
		return TextureNone, 0, false
	}
	t, ok := ParseTextureType(name)
	if !ok {
		return TextureNone, 0, false
	}
	slot, err := strconv.Atoi(num)
	if err != nil || slot < 0 {
		return TextureNone, 0, false
	}
	return t, slot, true
}

package scene

import (
	"github.com/Faultbox/scenery/pkg/props"
)

// Material owns a property store. Texture references live in the store under
// the texture slot schema of package props.
type Material struct {
	Props *props.Store
}

// NewMaterial returns a material named name.
func NewMaterial(name string) *Material {
	m := &Material{Props: props.New()}
	if name != "" {
		m.Props.SetString(props.KeyName, name)
	}
	return m
}

// Name returns the material name, empty when unset.
func (m *Material) Name() string {
	return m.Props.StringOr(props.KeyName, "")
}

// AddTexture stores ref, replacing any reference with the same type and slot.
func (m *Material) AddTexture(ref props.TextureRef) {
	m.Props.SetTexture(ref)
}

// Textures returns the texture references ordered by type then slot.
func (m *Material) Textures() []props.TextureRef {
	return m.Props.Textures()
}

// TextureCount returns the number of slots of type t.
func (m *Material) TextureCount(t props.TextureType) int {
	return m.Props.TextureCount(t)
}

// Texture returns the reference in slot (t, slot).
func (m *Material) Texture(t props.TextureType, slot int) (props.TextureRef, error) {
	return m.Props.Texture(t, slot)
}

// SetName sets the material name.
func (m *Material) SetName(name string) {
	m.Props.SetString(props.KeyName, name)
}

package scene

import (
	"github.com/Faultbox/scenery/pkg/math"
)

// Attribute set limits.
const (
	MaxUVChannels = 8
	MaxColorSets  = 8
)

// NoMaterial is the material index of a mesh without a material.
const NoMaterial = -1

// PrimitiveType is a bitmask of the face sizes present in a mesh.
type PrimitiveType uint8

const (
	PrimitivePoint PrimitiveType = 1 << iota
	PrimitiveLine
	PrimitiveTriangle
	PrimitivePolygon
)

// Face is an ordered list of vertex indices.
type Face struct {
	Indices []uint32
}

// Tri builds a triangle face.
func Tri(a, b, c uint32) Face {
	return Face{Indices: []uint32{a, b, c}}
}

// VertexWeight binds a vertex to a bone.
type VertexWeight struct {
	Vertex uint32
	Weight float32
}

// Bone is a named influence on a mesh's vertices.
type Bone struct {
	Name    string
	Offset  math.Mat4
	Weights []VertexWeight
}

// Mesh owns its vertex attributes and faces. Every present attribute has one
// entry per position; absent attributes are nil.
type Mesh struct {
	Name       string
	Positions  []math.Vec3
	Normals    []math.Vec3
	Tangents   []math.Vec3
	Bitangents []math.Vec3
	Colors     [MaxColorSets][]math.Vec4
	UVs        [MaxUVChannels][]math.Vec3
	// UVComponents is the number of meaningful components (1-3) per channel.
	UVComponents [MaxUVChannels]int

	Faces          []Face
	MaterialIndex  int
	PrimitiveTypes PrimitiveType
	Bones          []Bone
}

// NewMesh returns an empty mesh without a material.
func NewMesh(name string) *Mesh {
	return &Mesh{Name: name, MaterialIndex: NoMaterial}
}

// NumVertices returns the vertex count.
func (m *Mesh) NumVertices() int { return len(m.Positions) }

// HasNormals reports whether normals are present.
func (m *Mesh) HasNormals() bool { return m.Normals != nil }

// HasTangents reports whether tangents and bitangents are present.
func (m *Mesh) HasTangents() bool { return m.Tangents != nil && m.Bitangents != nil }

// HasUVs reports whether UV channel ch is present.
func (m *Mesh) HasUVs(ch int) bool {
	return ch >= 0 && ch < MaxUVChannels && m.UVs[ch] != nil
}

// NumUVChannels counts the present UV channels.
func (m *Mesh) NumUVChannels() int {
	n := 0
	for ch := range m.UVs {
		if m.UVs[ch] != nil {
			n++
		}
	}
	return n
}

// HasColors reports whether colour set is present.
func (m *Mesh) HasColors(set int) bool {
	return set >= 0 && set < MaxColorSets && m.Colors[set] != nil
}

// UpdatePrimitiveTypes recomputes PrimitiveTypes from the faces.
func (m *Mesh) UpdatePrimitiveTypes() {
	m.PrimitiveTypes = 0
	for _, f := range m.Faces {
		switch n := len(f.Indices); {
		case n == 1:
			m.PrimitiveTypes |= PrimitivePoint
		case n == 2:
			m.PrimitiveTypes |= PrimitiveLine
		case n == 3:
			m.PrimitiveTypes |= PrimitiveTriangle
		case n > 3:
			m.PrimitiveTypes |= PrimitivePolygon
		}
	}
}

// SameLayout reports whether both meshes carry the same set of attributes.
func (m *Mesh) SameLayout(o *Mesh) bool {
	if m.HasNormals() != o.HasNormals() || m.HasTangents() != o.HasTangents() {
		return false
	}
	for ch := 0; ch < MaxUVChannels; ch++ {
		if m.HasUVs(ch) != o.HasUVs(ch) {
			return false
		}
		if m.HasUVs(ch) && m.UVComponents[ch] != o.UVComponents[ch] {
			return false
		}
	}
	for set := 0; set < MaxColorSets; set++ {
		if m.HasColors(set) != o.HasColors(set) {
			return false
		}
	}
	return len(m.Bones) == 0 && len(o.Bones) == 0
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{
		Name:           m.Name,
		Positions:      cloneVec3(m.Positions),
		Normals:        cloneVec3(m.Normals),
		Tangents:       cloneVec3(m.Tangents),
		Bitangents:     cloneVec3(m.Bitangents),
		UVComponents:   m.UVComponents,
		MaterialIndex:  m.MaterialIndex,
		PrimitiveTypes: m.PrimitiveTypes,
	}
	for ch := range m.UVs {
		c.UVs[ch] = cloneVec3(m.UVs[ch])
	}
	for set := range m.Colors {
		if m.Colors[set] != nil {
			c.Colors[set] = append([]math.Vec4(nil), m.Colors[set]...)
		}
	}
	c.Faces = make([]Face, len(m.Faces))
	for i, f := range m.Faces {
		c.Faces[i] = Face{Indices: append([]uint32(nil), f.Indices...)}
	}
	for _, b := range m.Bones {
		c.Bones = append(c.Bones, Bone{
			Name:    b.Name,
			Offset:  b.Offset,
			Weights: append([]VertexWeight(nil), b.Weights...),
		})
	}
	return c
}

func cloneVec3(v []math.Vec3) []math.Vec3 {
	if v == nil {
		return nil
	}
	return append([]math.Vec3(nil), v...)
}

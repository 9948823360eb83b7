// Package scene holds the in-memory result of an import: a node tree stored
// in an arena plus the mesh, material, animation, texture, camera and light
// sequences that nodes and meshes reference by index.
package scene

import (
	"github.com/Faultbox/scenery/pkg/props"
)

// Flags describe the state of a scene.
type Flags uint32

const (
	// FlagIncomplete marks a scene that intentionally lacks geometry, e.g. an
	// animation-only file.
	FlagIncomplete Flags = 1 << iota
	// FlagValidated is set by the validation step once no violations remain.
	FlagValidated
	// FlagNonVerbose marks meshes that share vertices between faces.
	FlagNonVerbose
)

// Scene owns the node arena and every sequence nodes and meshes index into.
// A Scene is built by one parser, refined by post-processing steps and
// released as a unit. Callers that receive a scene from an importer should
// treat it as read-only.
type Scene struct {
	Flags    Flags
	Metadata *props.Store

	nodes      []*Node
	root       NodeID
	meshes     []*Mesh
	materials  []*Material
	animations []*Animation
	textures   []*Texture
	cameras    []*Camera
	lights     []*Light
}

// New returns an empty scene with no root node and no meshes.
func New() *Scene {
	return &Scene{
		Metadata: props.New(),
		root:     NoNode,
	}
}

// Release drops every node and sequence so nothing built so far stays
// reachable through the scene.
func (s *Scene) Release() {
	if s == nil {
		return
	}
	s.nodes = nil
	s.root = NoNode
	s.meshes = nil
	s.materials = nil
	s.animations = nil
	s.textures = nil
	s.cameras = nil
	s.lights = nil
	s.Metadata = props.New()
	s.Flags = 0
}

// Meshes returns the mesh sequence.
func (s *Scene) Meshes() []*Mesh { return s.meshes }

// Materials returns the material sequence.
func (s *Scene) Materials() []*Material { return s.materials }

// Animations returns the animation sequence.
func (s *Scene) Animations() []*Animation { return s.animations }

// Textures returns the embedded texture sequence.
func (s *Scene) Textures() []*Texture { return s.textures }

// Cameras returns the camera sequence.
func (s *Scene) Cameras() []*Camera { return s.cameras }

// Lights returns the light sequence.
func (s *Scene) Lights() []*Light { return s.lights }

// Mesh returns the mesh at index i, or nil when out of range.
func (s *Scene) Mesh(i int) *Mesh {
	if i < 0 || i >= len(s.meshes) {
		return nil
	}
	return s.meshes[i]
}

// Material returns the material at index i, or nil when out of range.
func (s *Scene) Material(i int) *Material {
	if i < 0 || i >= len(s.materials) {
		return nil
	}
	return s.materials[i]
}

// AddMesh appends m and returns its index.
func (s *Scene) AddMesh(m *Mesh) int {
	s.meshes = append(s.meshes, m)
	return len(s.meshes) - 1
}

// AddMaterial appends m and returns its index.
func (s *Scene) AddMaterial(m *Material) int {
	s.materials = append(s.materials, m)
	return len(s.materials) - 1
}

// AddAnimation appends a and returns its index.
func (s *Scene) AddAnimation(a *Animation) int {
	s.animations = append(s.animations, a)
	return len(s.animations) - 1
}

// AddTexture appends an embedded texture and returns its index.
func (s *Scene) AddTexture(t *Texture) int {
	s.textures = append(s.textures, t)
	return len(s.textures) - 1
}

// AddCamera appends c and returns its index.
func (s *Scene) AddCamera(c *Camera) int {
	s.cameras = append(s.cameras, c)
	return len(s.cameras) - 1
}

// AddLight appends l and returns its index.
func (s *Scene) AddLight(l *Light) int {
	s.lights = append(s.lights, l)
	return len(s.lights) - 1
}

// SetMeshes replaces the mesh sequence. The caller must rewrite every node's
// mesh indices to match the new order.
func (s *Scene) SetMeshes(meshes []*Mesh) { s.meshes = meshes }

// SetMaterials replaces the material sequence. The caller must rewrite every
// mesh's material index to match the new order.
func (s *Scene) SetMaterials(materials []*Material) { s.materials = materials }

// Stats summarises the size of a scene.
type Stats struct {
	Nodes      int
	Meshes     int
	Vertices   int
	Faces      int
	Materials  int
	Animations int
	Textures   int
	Cameras    int
	Lights     int
}

// Stats counts the scene's contents.
func (s *Scene) Stats() Stats {
	st := Stats{
		Nodes:      len(s.nodes),
		Meshes:     len(s.meshes),
		Materials:  len(s.materials),
		Animations: len(s.animations),
		Textures:   len(s.textures),
		Cameras:    len(s.cameras),
		Lights:     len(s.lights),
	}
	for _, m := range s.meshes {
		if m == nil {
			continue
		}
		st.Vertices += m.NumVertices()
		st.Faces += len(m.Faces)
	}
	return st
}

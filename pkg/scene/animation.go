package scene

import (
	"github.com/Faultbox/scenery/pkg/math"
)

// VectorKey is a timed position or scale key.
type VectorKey struct {
	Time  float64
	Value math.Vec3
}

// QuatKey is a timed rotation key.
type QuatKey struct {
	Time  float64
	Value math.Quat
}

// NodeAnim animates the node named NodeName.
type NodeAnim struct {
	NodeName     string
	PositionKeys []VectorKey
	RotationKeys []QuatKey
	ScalingKeys  []VectorKey
}

// Animation is a set of node channels sharing one time line.
type Animation struct {
	Name string
	// Duration is measured in ticks.
	Duration       float64
	TicksPerSecond float64
	Channels       []NodeAnim
}

// Texture is an embedded texture. FormatHint names the compressed format
// ("png", "jpg", ...) when Data holds a file; Width and Height are set for
// raw RGBA8 data.
type Texture struct {
	Name       string
	FormatHint string
	Width      int
	Height     int
	Data       []byte
}

// Camera is attached to the node with the same name.
type Camera struct {
	Name          string
	Position      math.Vec3
	Up            math.Vec3
	LookAt        math.Vec3
	HorizontalFOV float32
	ClipNear      float32
	ClipFar       float32
	Aspect        float32
}

// NewCamera returns a camera with the conventional defaults.
func NewCamera(name string) *Camera {
	return &Camera{
		Name:          name,
		Up:            math.Vec3{Y: 1},
		LookAt:        math.Vec3{Z: 1},
		HorizontalFOV: 0.25 * 3.14159265,
		ClipNear:      0.1,
		ClipFar:       1000,
	}
}

// LightType identifies the kind of light source.
type LightType uint8

const (
	LightUndefined LightType = iota
	LightDirectional
	LightPoint
	LightSpot
	LightAmbient
)

// Light is attached to the node with the same name.
type Light struct {
	Name                 string
	Type                 LightType
	Position             math.Vec3
	Direction            math.Vec3
	Diffuse              math.Vec3
	Specular             math.Vec3
	Ambient              math.Vec3
	AttenuationConstant  float32
	AttenuationLinear    float32
	AttenuationQuadratic float32
	InnerCone            float32
	OuterCone            float32
}

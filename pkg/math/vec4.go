package math

import "math"

// Vec4 is a 4-component vector. Scenes use it for RGBA colours.
type Vec4 [4]float32

// White is opaque white.
var White = Vec4{1, 1, 1, 1}

// ColorFromRGBA8 converts 8-bit channels to a normalized colour.
func ColorFromRGBA8(r, g, b, a uint8) Vec4 {
	return Vec4{float32(r) / 255, float32(g) / 255, float32(b) / 255, float32(a) / 255}
}

// RGB returns the first three components as a Vec3.
func (v Vec4) RGB() Vec3 {
	return Vec3{v[0], v[1], v[2]}
}

// Bits returns the IEEE-754 bit patterns of the components.
func (v Vec4) Bits() [4]uint32 {
	return [4]uint32{
		math.Float32bits(v[0]), math.Float32bits(v[1]),
		math.Float32bits(v[2]), math.Float32bits(v[3]),
	}
}

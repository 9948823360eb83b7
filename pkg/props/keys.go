package props

import (
	"fmt"
	"sort"

	"github.com/Faultbox/scenery/pkg/math"
)

// Standard material keys shared by every format.
const (
	KeyName           = "?mat.name"
	KeyColorDiffuse   = "$clr.diffuse"
	KeyColorSpecular  = "$clr.specular"
	KeyColorAmbient   = "$clr.ambient"
	KeyColorEmissive  = "$clr.emissive"
	KeyShininess      = "$mat.shininess"
	KeyOpacity        = "$mat.opacity"
	KeyTwoSided       = "$mat.twosided"
	KeyShadingModel   = "$mat.shadingm"
	KeyMetallicFactor = "$mat.metallic"
	KeyRoughness      = "$mat.roughness"
)

// ShadingModel values stored under KeyShadingModel.
const (
	ShadingFlat    int64 = 1
	ShadingGouraud int64 = 2
	ShadingPhong   int64 = 3
	ShadingPBR     int64 = 4
	ShadingNone    int64 = 5
)

// FormatKey namespaces a format-specific material field, e.g.
// FormatKey("irr", "lighting") == "$mat.irr.lighting".
func FormatKey(format, field string) string {
	return "$mat." + format + "." + field
}

// FromMap builds a store from decoded configuration values. Supported value
// types are bool, integers, floats, strings, byte slices and three-element
// numeric lists (stored as Vec3). Keys are processed in sorted order so the
// first unsupported key reported is deterministic.
func FromMap(m map[string]any) (*Store, error) {
	s := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, err := valueOf(m[k])
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		s.Set(k, v)
	}
	return s, nil
}

func valueOf(raw any) (Value, error) {
	switch x := raw.(type) {
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint32:
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	case []byte:
		return Bytes(x), nil
	case []any:
		if len(x) != 3 {
			return Value{}, fmt.Errorf("list of %d elements, want 3", len(x))
		}
		var c [3]float32
		for i, e := range x {
			f, ok := number(e)
			if !ok {
				return Value{}, fmt.Errorf("list element %d is %T, want number", i, e)
			}
			c[i] = float32(f)
		}
		return Vector(math.V3(c)), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

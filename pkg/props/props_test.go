package props

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Faultbox/scenery/pkg/math"
)

func TestStore_SetGet(t *testing.T) {
	tests := []struct {
		name  string
		value Value
	}{
		{"bool", Bool(true)},
		{"int", Int(-42)},
		{"float", Float(0.85)},
		{"vec3", Vector(math.Vec3{X: 0.1, Y: 0.2, Z: 0.3})},
		{"string", String("brick.bmp")},
		{"bytes", Bytes([]byte{1, 2, 3})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.Set("$mat.test."+tt.name, tt.value)

			got, err := s.Get("$mat.test."+tt.name, tt.value.Type())
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.value), "got %v, want %v", got, tt.value)
		})
	}
}

func TestStore_GetNotFound(t *testing.T) {
	s := New()
	_, err := s.Get("missing", TypeInt)
	assert.ErrorIs(t, err, ErrNotFound)

	var nilStore *Store
	_, err = nilStore.Get("missing", TypeInt)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetTypeMismatch(t *testing.T) {
	s := New()
	s.SetFloat("$mat.blend.diffuse.intensity", 0.4)

	_, err := s.Int("$mat.blend.diffuse.intensity")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	var mismatch *TypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, TypeInt, mismatch.Want)
	assert.Equal(t, TypeFloat, mismatch.Have)
}

func TestStore_SetOverwritesType(t *testing.T) {
	s := New()
	s.SetInt("k", 1)
	s.SetString("k", "one")

	_, err := s.Int("k")
	assert.ErrorIs(t, err, ErrTypeMismatch)
	str, err := s.String("k")
	require.NoError(t, err)
	assert.Equal(t, "one", str)
	assert.Equal(t, 1, s.Len())
}

func TestStore_BytesAreCopied(t *testing.T) {
	buf := []byte{1, 2, 3}
	s := New()
	s.SetBytes("raw", buf)
	buf[0] = 9

	got, err := s.BytesValue("raw")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	got[1] = 9
	again, _ := s.BytesValue("raw")
	assert.Equal(t, []byte{1, 2, 3}, again)
}

func TestStore_InvalidValueIgnored(t *testing.T) {
	s := New()
	s.Set("k", Value{})
	assert.False(t, s.Has("k"))
}

func TestStore_Defaults(t *testing.T) {
	s := New()
	s.SetInt("angle", 80)
	s.SetString("flag", "yes")

	assert.Equal(t, 80.0, s.FloatOr("angle", 175))
	assert.Equal(t, 175.0, s.FloatOr("missing", 175))
	assert.True(t, s.BoolOr("flag", true), "mismatched type falls back to default")
	assert.Equal(t, int64(3), s.IntOr("missing", 3))
	assert.Equal(t, "yes", s.StringOr("flag", "no"))
}

func TestStore_AllIsRestartable(t *testing.T) {
	s := New()
	s.SetInt("a", 1)
	s.SetInt("b", 2)
	s.SetInt("c", 3)

	count := func() int {
		n := 0
		for range s.All() {
			n++
		}
		return n
	}
	assert.Equal(t, 3, count())
	assert.Equal(t, 3, count())

	// Early termination must not affect the next enumeration.
	for range s.All() {
		break
	}
	assert.Equal(t, 3, count())
	assert.Equal(t, []string{"a", "b", "c"}, s.Keys())
}

func TestStore_CloneMergeEqual(t *testing.T) {
	s := New()
	s.SetBytes("raw", []byte{1})
	s.SetVec3("v", math.Vec3{X: 1})

	c := s.Clone()
	assert.True(t, s.Equal(c))

	c.SetInt("extra", 1)
	assert.False(t, s.Equal(c))

	s.Merge(c)
	assert.True(t, s.Equal(c))
}

func TestFromMap(t *testing.T) {
	s, err := FromMap(map[string]any{
		"pp.gen_normals.force":     true,
		"pp.gen_normals.max_angle": 80.0,
		"import.max_file_size":     1024,
		"import.hint":              "rsm",
		"scene.up":                 []any{0, 1.0, 0},
	})
	require.NoError(t, err)

	assert.True(t, s.BoolOr("pp.gen_normals.force", false))
	assert.Equal(t, 80.0, s.FloatOr("pp.gen_normals.max_angle", 0))
	assert.Equal(t, int64(1024), s.IntOr("import.max_file_size", 0))
	up, err := s.Vec3("scene.up")
	require.NoError(t, err)
	assert.Equal(t, math.Vec3{Y: 1}, up)

	_, err = FromMap(map[string]any{"bad": []any{1, 2}})
	assert.Error(t, err)
	_, err = FromMap(map[string]any{"bad": map[string]any{}})
	assert.Error(t, err)
}

func TestStore_PropertyRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := New()
		key := rapid.StringMatching(`\$mat\.[a-z]{1,8}\.[a-z]{1,8}`).Draw(rt, "key")

		var v Value
		switch rapid.IntRange(0, 5).Draw(rt, "kind") {
		case 0:
			v = Bool(rapid.Bool().Draw(rt, "b"))
		case 1:
			v = Int(rapid.Int64().Draw(rt, "i"))
		case 2:
			v = Float(rapid.Float64Range(-1e9, 1e9).Draw(rt, "f"))
		case 3:
			v = Vector(math.Vec3{
				X: rapid.Float32Range(-1e6, 1e6).Draw(rt, "x"),
				Y: rapid.Float32Range(-1e6, 1e6).Draw(rt, "y"),
				Z: rapid.Float32Range(-1e6, 1e6).Draw(rt, "z"),
			})
		case 4:
			v = String(rapid.String().Draw(rt, "s"))
		default:
			v = Bytes(rapid.SliceOf(rapid.Byte()).Draw(rt, "raw"))
		}
		s.Set(key, v)

		got, err := s.Get(key, v.Type())
		require.NoError(rt, err)
		require.True(rt, got.Equal(v))

		other := Type(rapid.IntRange(int(TypeBool), int(TypeBytes)).Draw(rt, "other"))
		if other != v.Type() {
			_, err := s.Get(key, other)
			require.ErrorIs(rt, err, ErrTypeMismatch)
		}

		_, err = s.Get(key+".absent", v.Type())
		require.ErrorIs(rt, err, ErrNotFound)
	})
}

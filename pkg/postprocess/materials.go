package postprocess

import (
	"go.uber.org/zap"

	"github.com/Faultbox/scenery/pkg/props"
	"github.com/Faultbox/scenery/pkg/scene"
)

// removeRedundantMaterials drops materials no mesh uses and folds materials
// whose properties match apart from the name into the first of them.
func removeRedundantMaterials(ctx *Context, sc *scene.Scene) error {
	materials := sc.Materials()
	if len(materials) == 0 {
		return nil
	}

	used := make([]bool, len(materials))
	for _, m := range sc.Meshes() {
		if m.MaterialIndex >= 0 && m.MaterialIndex < len(materials) {
			used[m.MaterialIndex] = true
		}
	}

	remap := make([]int, len(materials))
	var kept []*scene.Material
	var keys []*props.Store
	for i, mat := range materials {
		remap[i] = scene.NoMaterial
		if !used[i] || mat == nil {
			continue
		}
		key := withoutName(mat.Props)
		for j, k := range keys {
			if k.Equal(key) {
				remap[i] = j
				break
			}
		}
		if remap[i] == scene.NoMaterial {
			remap[i] = len(kept)
			kept = append(kept, mat)
			keys = append(keys, key)
		}
	}

	for _, m := range sc.Meshes() {
		if m.MaterialIndex >= 0 && m.MaterialIndex < len(remap) {
			m.MaterialIndex = remap[m.MaterialIndex]
		}
	}
	sc.SetMaterials(kept)
	ctx.Logger.Debug("removed redundant materials",
		zap.Int("before", len(materials)),
		zap.Int("after", len(kept)))
	return nil
}

func withoutName(p *props.Store) *props.Store {
	c := p.Clone()
	c.Delete(props.KeyName)
	return c
}

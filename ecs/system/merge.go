package system

import (
	"github.com/milk9111/blockfuse/ecs"
	"github.com/milk9111/blockfuse/merge"
)

// MergeSystem feeds queued contact events to the merge engine, one at a time
// and in arrival order. Fusions destroy bodies mid-frame; the physics system
// drops them from the space on its next update.
type MergeSystem struct {
	engine *merge.Engine
}

func NewMergeSystem(engine *merge.Engine) *MergeSystem {
	return &MergeSystem{engine: engine}
}

func (ms *MergeSystem) Update(w *ecs.World) {
	if ms == nil || ms.engine == nil || w == nil {
		return
	}
	for _, evt := range w.Events().DrainType(ecs.EventContact) {
		c, ok := evt.Data.(ecs.ContactEvent)
		if !ok {
			continue
		}
		ms.engine.HandleContact(w, c.Self, c.Other)
	}
}

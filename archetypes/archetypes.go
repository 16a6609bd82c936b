package archetypes

import (
	"github.com/automoto/arena-sync/components"
	"github.com/automoto/arena-sync/tags"
	"github.com/yohamta/donburi"
)

var (
	Match = newArchetype(
		tags.Match,
		components.Match,
		components.Ledger,
		components.Clock,
	)
	Participant = newArchetype(
		tags.Participant,
		components.Participant,
	)
)

type archetype struct {
	components []donburi.IComponentType
}

func newArchetype(cs ...donburi.IComponentType) *archetype {
	return &archetype{
		components: cs,
	}
}

func (a *archetype) Spawn(w donburi.World, cs ...donburi.IComponentType) *donburi.Entry {
	return w.Entry(w.Create(append(a.components, cs...)...))
}

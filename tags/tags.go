package tags

import "github.com/yohamta/donburi"

var (
	Participant = donburi.NewTag().SetName("Participant")
	Local       = donburi.NewTag().SetName("Local")
	Match       = donburi.NewTag().SetName("Match")
)

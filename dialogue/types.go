package dialogue

import (
	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/types"
)

// ExitTitle labels the exit button shown first on every question.
const ExitTitle = "❌ Salir"

// CityLookup lists the cities offered for a market.
type CityLookup interface {
	Cities(country string) []string
}

// Request asks for the question of Slot given the current snapshot.
type Request struct {
	Spec  *form.Spec
	Slot  string
	Slots types.Slots
}

type Renderer interface {
	RenderAsk(req *Request) types.Event
}

package agent

import (
	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/types"
)

// ActionListen ends the bot's turn and waits for the user.
const ActionListen = "action_listen"

// State is what a session keeps between turns.
type State struct {
	Slots          types.Slots `json:"slots"`
	LatestQuestion string      `json:"latest_question,omitempty"`
}

// Request is one controller step for the active form. Turn.LastIntent must already hold the
// recognized intent.
type Request struct {
	Spec           *form.Spec
	Turn           *types.Turn
	LatestQuestion string
}

type Response struct {
	Phase    types.Phase       `json:"phase"`
	Events   types.Events      `json:"events"`
	Question string            `json:"question,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

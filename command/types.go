package command

import (
	"context"

	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/types"
)

type Command string

const (
	Exit     Command = "exit"
	Redirect Command = "redirect"
	Confirm  Command = "confirm"
	Deny     Command = "deny"
	Back     Command = "back"
	None     Command = "none"
)

// Request is what a parser sees of a turn: the active form, the observed intent and the
// dialogue context of the utterance.
type Request struct {
	Spec   *form.Spec
	Intent string
	Tool   *types.ToolRequest
}

// Text returns the user's utterance.
func (r *Request) Text() string {
	if r.Tool == nil {
		return ""
	}
	return r.Tool.MessagePair.Answer
}

type Parser interface {
	ParseCommand(ctx context.Context, req *Request) (Command, error)
}

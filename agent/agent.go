package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/talkform/types"
)

// TurnHandler runs a whole dialogue turn, followups included.
type TurnHandler interface {
	HandleTurn(ctx context.Context, turn *types.Turn) (*types.TurnResult, error)
}

var _ adk.Agent = (*Agent)(nil)

// Agent exposes a TurnHandler as an adk agent. The session is the state key of the context.
type Agent struct {
	name        string
	description string
	handler     TurnHandler
}

func NewAgent(name, description string, handler TurnHandler) *Agent {
	return &Agent{
		name:        name,
		description: description,
		handler:     handler,
	}
}

func (a *Agent) Name(ctx context.Context) string {
	return a.name
}

func (a *Agent) Description(ctx context.Context) string {
	return a.description
}

func (a *Agent) Run(ctx context.Context, input *adk.AgentInput, options ...adk.AgentRunOption) *adk.AsyncIterator[*adk.AgentEvent] {
	iter, gen := adk.NewAsyncIteratorPair[*adk.AgentEvent]()
	go func() {
		defer func() {
			if e := recover(); e != nil {
				gen.Send(&adk.AgentEvent{
					Err: fmt.Errorf("recover from panic: %v", e),
				})
			}
			gen.Close()
		}()
		if input == nil || len(input.Messages) == 0 {
			gen.Send(&adk.AgentEvent{
				Err: errors.New("no messages in input"),
			})
			return
		}
		sender, _ := StateKeyFromContext(ctx)
		result, err := a.handler.HandleTurn(ctx, &types.Turn{
			SenderID: sender,
			Text:     input.Messages[len(input.Messages)-1].Content,
		})
		if err != nil {
			gen.Send(&adk.AgentEvent{
				Err: fmt.Errorf("turn failed: %w", err),
			})
			return
		}
		gen.Send(&adk.AgentEvent{
			AgentName: a.name,
			Output: &adk.AgentOutput{
				MessageOutput: &adk.MessageVariant{
					IsStreaming: false,
					Message:     schema.AssistantMessage(FormatEvents(result.Events), nil),
					Role:        schema.Assistant,
				},
			},
		})
	}()
	return iter
}

// FormatEvents renders the visible events of a turn as plain text, buttons as "title → payload".
func FormatEvents(events types.Events) string {
	var b strings.Builder
	for _, e := range events {
		if !e.Renders() {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(e.Text)
		for _, btn := range e.Buttons {
			fmt.Fprintf(&b, "\n  • %s → %s", btn.Title, btn.Payload)
		}
	}
	return b.String()
}

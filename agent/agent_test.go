package agent_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/talkform/agent"
	"github.com/tbxark/talkform/types"
)

type handlerFunc func(ctx context.Context, turn *types.Turn) (*types.TurnResult, error)

func (f handlerFunc) HandleTurn(ctx context.Context, turn *types.Turn) (*types.TurnResult, error) {
	return f(ctx, turn)
}

func collect(t *testing.T, ctx context.Context, a adk.Agent, msgs ...*schema.Message) []*adk.AgentEvent {
	t.Helper()
	iter := a.Run(ctx, &adk.AgentInput{Messages: msgs})
	var out []*adk.AgentEvent
	for {
		ev, ok := iter.Next()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func TestAgentRun(t *testing.T) {
	t.Parallel()
	var seen *types.Turn
	a := agent.NewAgent("talkform", "forms", handlerFunc(func(ctx context.Context, turn *types.Turn) (*types.TurnResult, error) {
		seen = turn
		return &types.TurnResult{Events: types.Events{
			types.SetSlot("x", types.Value("1")),
			types.Ask("destino_b", "¿Destino?", []types.Button{{Title: "Valencia", Payload: "Valencia"}}),
			types.Followup("action_listen"),
		}}, nil
	}))
	ctx := agent.WithStateKey(context.Background(), "cli")
	events := collect(t, ctx, a, schema.UserMessage("primero"), schema.UserMessage("hola"))
	if len(events) != 1 || events[0].Err != nil {
		t.Fatalf("events = %+v", events)
	}
	if seen.Text != "hola" || seen.SenderID != "cli" {
		t.Errorf("turn = %+v", seen)
	}
	msg, err := events[0].Output.MessageOutput.GetMessage()
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content != "¿Destino?\n  • Valencia → Valencia" {
		t.Errorf("content = %q", msg.Content)
	}
}

func TestAgentRunErrors(t *testing.T) {
	t.Parallel()
	a := agent.NewAgent("talkform", "forms", handlerFunc(func(ctx context.Context, turn *types.Turn) (*types.TurnResult, error) {
		return nil, errors.New("boom")
	}))
	events := collect(t, context.Background(), a)
	if len(events) != 1 || events[0].Err == nil {
		t.Fatalf("empty input: %+v", events)
	}
	events = collect(t, context.Background(), a, schema.UserMessage("hola"))
	if len(events) != 1 || events[0].Err == nil || !strings.Contains(events[0].Err.Error(), "boom") {
		t.Fatalf("handler error: %+v", events)
	}
}

func TestFormatEvents(t *testing.T) {
	t.Parallel()
	got := agent.FormatEvents(types.Events{
		types.Message("uno"),
		types.SetSlot("a", nil),
		types.Message("dos"),
	})
	if got != "uno\n\ndos" {
		t.Errorf("got %q", got)
	}
}

package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/talkform/structured"
	"github.com/tbxark/talkform/types"
)

const (
	recognizeToolName        = "recognize_intent"
	recognizeToolDescription = "Pick the analysis topic the user asks for, or none."
	noIntent                 = "none"
)

const recognizeSystemPrompt = `You route messages of users of a tourism data-analysis assistant in Spanish.

Pick the topic the user explicitly asks to analyse. Return "none" for greetings, chatter or
anything that does not clearly name one of the topics.

Topics:
%s
Call the '%s' tool with the result.`

// Choice is an intent the model may return, with the text that describes it.
type Choice struct {
	Intent      string
	Description string
}

// ChoicesFromButtons turns "/intent" payload buttons, such as the analysis menu, into choices.
func ChoicesFromButtons(buttons []types.Button) []Choice {
	out := make([]Choice, 0, len(buttons))
	for _, b := range buttons {
		if name, ok := FromPayload(b.Payload); ok {
			out = append(out, Choice{Intent: name, Description: b.Title})
		}
	}
	return out
}

type recognizeInput struct {
	Intent string `json:"intent" jsonschema:"required,description=One of the listed topic intents or none"`
}

// ToolBasedRecognizer asks a tool calling chat model to map free text to one of a fixed set of
// intents. Turns inside an active form, or holding a question for the AI agent, are left alone.
type ToolBasedRecognizer struct {
	chain   *structured.Chain[*types.Turn, recognizeInput]
	choices map[string]bool
}

func NewToolBasedRecognizer(chatModel model.ToolCallingChatModel, choices []Choice) (*ToolBasedRecognizer, error) {
	var b strings.Builder
	allowed := make(map[string]bool, len(choices))
	for _, c := range choices {
		allowed[c.Intent] = true
		fmt.Fprintf(&b, "- %s: %s\n", c.Intent, c.Description)
	}
	system := fmt.Sprintf(recognizeSystemPrompt, b.String(), recognizeToolName)
	chain, err := structured.NewChain[*types.Turn, recognizeInput](
		chatModel,
		func(ctx context.Context, turn *types.Turn) ([]*schema.Message, error) {
			return []*schema.Message{
				schema.SystemMessage(system),
				schema.UserMessage(turn.Text),
			}, nil
		},
		recognizeToolName,
		recognizeToolDescription,
	)
	if err != nil {
		return nil, err
	}
	return &ToolBasedRecognizer{chain: chain, choices: allowed}, nil
}

func (r *ToolBasedRecognizer) Recognize(ctx context.Context, turn *types.Turn) (string, error) {
	if strings.TrimSpace(turn.Text) == "" || turn.Slots.Has(types.ActiveForm) || turn.Slots.Has(types.ScopeSlot) {
		return "", nil
	}
	result, err := r.chain.Invoke(ctx, turn)
	if err != nil {
		return "", err
	}
	if result == nil || result.Intent == "" || result.Intent == noIntent {
		return "", nil
	}
	if !r.choices[result.Intent] {
		return "", fmt.Errorf("unknown intent %q returned by %s", result.Intent, recognizeToolName)
	}
	return result.Intent, nil
}

package command

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/talkform/structured"
)

const (
	parseCommandToolName        = "parse_control_command"
	parseCommandToolDescription = "Classify the user's reply as a form control command: exit, redirect, confirm, deny, back or none."
)

const parseCommandSystemPrompt = `You classify replies of users filling a data-analysis query form in Spanish.

Combine the assistant's question with the user's answer. Do not judge isolated words.

Choose one command:
- exit: the user explicitly wants to leave the form ("salir", "cancelar", "déjalo").
- redirect: the user explicitly asks to talk to the AI agent instead of filling the form.%s
- confirm: the form is waiting for confirmation and the user accepts the summary ("sí", "adelante", "correcto").
- deny: the form is waiting for confirmation and the user rejects or wants to correct the summary.
- back: the user wants to change the previous answer ("volver", "atrás", "me he equivocado").
- none: anything else, including answers to the current question.

Only return confirm or deny when the current phase is confirming.

Call the '%s' tool with the result.`

type parseCommandInput struct {
	Command Command `json:"command" jsonschema:"required,enum=exit,enum=redirect,enum=confirm,enum=deny,enum=back,enum=none,description=The control command of the reply"`
}

// ToolBasedCommandParser asks a tool calling chat model to classify free text replies.
type ToolBasedCommandParser struct {
	chain *structured.Chain[*Request, parseCommandInput]
}

func NewToolBasedCommandParser(chatModel model.ToolCallingChatModel) (*ToolBasedCommandParser, error) {
	chain, err := structured.NewChain[*Request, parseCommandInput](
		chatModel,
		buildParseCommandPrompt,
		parseCommandToolName,
		parseCommandToolDescription,
	)
	if err != nil {
		return nil, err
	}
	return &ToolBasedCommandParser{chain: chain}, nil
}

func (p *ToolBasedCommandParser) ParseCommand(ctx context.Context, req *Request) (Command, error) {
	if req.Tool == nil || req.Text() == "" {
		return None, nil
	}
	result, err := p.chain.Invoke(ctx, req)
	if err != nil {
		return None, err
	}
	if result == nil || result.Command == "" {
		return None, fmt.Errorf("empty command returned by %s", parseCommandToolName)
	}
	switch result.Command {
	case Exit, Confirm, Deny, None:
		return result.Command, nil
	case Back:
		if len(req.Spec.Flow.SlotIntents) > 0 {
			return None, nil
		}
		return Back, nil
	case Redirect:
		if req.Spec.Redirect.Scope == "" {
			return None, nil
		}
		return Redirect, nil
	}
	return None, fmt.Errorf("unknown command %q returned by %s", result.Command, parseCommandToolName)
}

func buildParseCommandPrompt(ctx context.Context, req *Request) ([]*schema.Message, error) {
	message, err := req.Tool.ToPromptMessage()
	if err != nil {
		return nil, fmt.Errorf("convert to prompt message failed: %w", err)
	}
	redirectNote := " This form has no AI agent: never return redirect."
	if req.Spec.Redirect.Scope != "" {
		redirectNote = ""
	}
	return []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(parseCommandSystemPrompt, redirectNote, parseCommandToolName)),
		schema.UserMessage(message),
	}, nil
}

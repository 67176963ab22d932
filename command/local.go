package command

import (
	"context"
	"strings"

	"github.com/tbxark/talkform/form"
)

// LocalCommandParser matches the form's control tokens as substrings of the utterance and
// the confirmation buttons by payload or intent. The exit token wins over the redirect token.
// The back token must be the whole utterance and is ignored by guided flows.
type LocalCommandParser struct{}

func NewLocalCommandParser() *LocalCommandParser {
	return &LocalCommandParser{}
}

func (p *LocalCommandParser) ParseCommand(ctx context.Context, req *Request) (Command, error) {
	text := req.Text()
	tokens := req.Spec.Tokens
	if tokens.Exit != "" && strings.Contains(text, tokens.Exit) {
		return Exit, nil
	}
	if req.Spec.Redirect.Scope != "" && tokens.Redirect != "" && strings.Contains(text, tokens.Redirect) {
		return Redirect, nil
	}
	trimmed := strings.TrimSpace(text)
	switch {
	case req.Intent == form.ConfirmIntent || trimmed == form.ConfirmPayload:
		return Confirm, nil
	case req.Intent == form.DenyIntent || trimmed == form.DenyPayload:
		return Deny, nil
	case strings.EqualFold(trimmed, form.BackToken) && len(req.Spec.Flow.SlotIntents) == 0:
		return Back, nil
	}
	return None, nil
}

// FailbackCommandParser asks each parser in turn until one recognizes a command.
type FailbackCommandParser struct {
	parsers []Parser
}

func NewFailbackCommandParser(parsers ...Parser) *FailbackCommandParser {
	return &FailbackCommandParser{parsers: parsers}
}

func (p *FailbackCommandParser) ParseCommand(ctx context.Context, req *Request) (Command, error) {
	var lastErr error
	for _, parser := range p.parsers {
		cmd, err := parser.ParseCommand(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		if cmd != None {
			return cmd, nil
		}
	}
	return None, lastErr
}

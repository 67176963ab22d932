package aiquery

import (
	"context"
	"errors"
	"log/slog"
)

// ErrEmptyResponse means the agent answered without any text.
var ErrEmptyResponse = errors.New("empty ai response")

// ErrorMessage is shown to the user when no agent could answer.
const ErrorMessage = "Lo siento, ha ocurrido un error. Vuelve a intentarlo, ¡gracias por ser paciente!"

// Question is a free-text query for the AI agent, scoped to the form that offered it.
type Question struct {
	SenderID string
	Text     string
	Scope    string
}

// Agent answers free-text questions about the report data.
type Agent interface {
	Answer(ctx context.Context, q *Question) (string, error)
}

type FailbackAgent struct {
	agents []Agent
}

func NewFailbackAgent(agents ...Agent) *FailbackAgent {
	return &FailbackAgent{agents: agents}
}

// Answer returns the first successful answer, or the last error.
func (f *FailbackAgent) Answer(ctx context.Context, q *Question) (string, error) {
	err := errors.New("no ai agent configured")
	for _, a := range f.agents {
		var answer string
		answer, err = a.Answer(ctx, q)
		if err == nil {
			return answer, nil
		}
		slog.Warn("AI agent failed", "scope", q.Scope, "error", err)
	}
	return "", err
}

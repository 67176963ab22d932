package intent

import (
	"context"
	"strings"

	"github.com/tbxark/talkform/types"
)

// LocalRecognizer keeps the intent sent by the caller and otherwise reads button payloads of
// the form "/intent" or "/intent{...}". Aliases map whole utterances to intents, for typed
// button titles.
type LocalRecognizer struct {
	Aliases map[string]string
}

func NewLocalRecognizer(aliases map[string]string) *LocalRecognizer {
	normalized := make(map[string]string, len(aliases))
	for text, name := range aliases {
		normalized[normalize(text)] = name
	}
	return &LocalRecognizer{Aliases: normalized}
}

func (r *LocalRecognizer) Recognize(ctx context.Context, turn *types.Turn) (string, error) {
	if turn.LastIntent != "" {
		return turn.LastIntent, nil
	}
	if name, ok := FromPayload(turn.Text); ok {
		return name, nil
	}
	return r.Aliases[normalize(turn.Text)], nil
}

// FromPayload extracts the intent of a "/intent" payload.
func FromPayload(text string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(text), "/")
	if !ok {
		return "", false
	}
	if i := strings.IndexAny(rest, "{ "); i >= 0 {
		rest = rest[:i]
	}
	return rest, rest != ""
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

type FailbackRecognizer struct {
	recognizers []Recognizer
}

func NewFailbackRecognizer(recognizers ...Recognizer) *FailbackRecognizer {
	return &FailbackRecognizer{recognizers: recognizers}
}

// Recognize returns the first non-empty intent. Errors are skipped while another
// recognizer can still answer.
func (r *FailbackRecognizer) Recognize(ctx context.Context, turn *types.Turn) (string, error) {
	var lastErr error
	for _, rec := range r.recognizers {
		name, err := rec.Recognize(ctx, turn)
		if err != nil {
			lastErr = err
			continue
		}
		if name != "" {
			return name, nil
		}
	}
	return "", lastErr
}

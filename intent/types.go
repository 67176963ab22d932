package intent

import (
	"context"

	"github.com/tbxark/talkform/types"
)

// Recognizer names the intent of a turn. An empty intent means none was observed.
type Recognizer interface {
	Recognize(ctx context.Context, turn *types.Turn) (string, error)
}

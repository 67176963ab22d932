package agent

import (
	"context"

	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/types"
)

// FormManager observes form outcomes. Errors are logged and never change the turn.
type FormManager interface {
	Cancel(ctx context.Context, spec *form.Spec, slots types.Slots) error
	Submit(ctx context.Context, spec *form.Spec, slots types.Slots) error
}

// NopFormManager ignores every outcome.
type NopFormManager struct{}

func (NopFormManager) Cancel(context.Context, *form.Spec, types.Slots) error { return nil }
func (NopFormManager) Submit(context.Context, *form.Spec, types.Slots) error { return nil }

package main

import (
	"context"
	"log/slog"

	"github.com/tbxark/talkform/agent"
	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/types"
)

var _ agent.FormManager = logFormManager{}

// logFormManager records form outcomes in the log.
type logFormManager struct{}

func (logFormManager) Cancel(ctx context.Context, spec *form.Spec, slots types.Slots) error {
	sender, _ := agent.StateKeyFromContext(ctx)
	slog.Debug("Form cancelled", "form", spec.Name, "sender", sender)
	return nil
}

func (logFormManager) Submit(ctx context.Context, spec *form.Spec, slots types.Slots) error {
	sender, _ := agent.StateKeyFromContext(ctx)
	slog.Info("Form submitted", "form", spec.Name, "sender", sender, "slots", slots.Plain())
	return nil
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tbxark/talkform/agent"
	"github.com/tbxark/talkform/aiquery"
	"github.com/tbxark/talkform/catalog"
	"github.com/tbxark/talkform/dialogue"
	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/query"
	"github.com/tbxark/talkform/types"
)

const (
	ActionInnohub = "action_t2n_innohub"
	ActionRestart = "action_restart_conversation"
	ActionMenu    = "action_carousel_analisis_datos"

	UserQueryPrompt = "📝 Escribe tu consulta para el agente IA."
)

// Tracker is what an action sees of the conversation.
type Tracker struct {
	Catalog *catalog.Catalog
	Turn    *types.Turn
	Slots   types.Slots
}

// Action runs one followup and returns its events. Actions never mutate the tracker.
type Action func(ctx context.Context, tr *Tracker) (types.Events, error)

// Actions resolves action names, static ones first, then the per-form families.
type Actions struct {
	renderer dialogue.Renderer
	executor query.Executor
	ai       aiquery.Agent
	static   map[string]Action
}

type ActionsOption func(*Actions)

func WithExecutor(e query.Executor) ActionsOption {
	return func(a *Actions) {
		a.executor = e
	}
}

func WithAIAgent(ai aiquery.Agent) ActionsOption {
	return func(a *Actions) {
		a.ai = ai
	}
}

func NewActions(renderer dialogue.Renderer, opts ...ActionsOption) *Actions {
	a := &Actions{renderer: renderer}
	for _, o := range opts {
		o(a)
	}
	a.static = map[string]Action{
		ActionInnohub:         a.innohub,
		ActionRestart:         restart,
		ActionMenu:            menu,
		ActionSetUserName:     setUserName,
		ActionFallback:        personalReply(fallbackReplies),
		ActionOutOfScope:      personalReply(outOfScopeReplies),
		ActionDeleteSlotForms: deleteQueryForms,
		ActionCheckQuery:      checkQuery,
	}
	return a
}

// Register adds or replaces a static action.
func (a *Actions) Register(name string, fn Action) {
	a.static[name] = fn
}

func (a *Actions) Lookup(cat *catalog.Catalog, name string) (Action, bool) {
	if fn, ok := a.static[name]; ok {
		return fn, true
	}
	if spec, ok := cat.ForAction(name); ok {
		switch name {
		case spec.Redirect.Action:
			return askUserQuery, true
		case spec.QueryAction:
			return a.query(spec), true
		case spec.SubmitAction:
			return clearForm(spec), true
		case catalog.SubmitFormAction(spec.Name):
			return submitForm(spec), true
		case catalog.FormAction(spec.Name):
			return a.formLoop(spec), true
		}
	}
	if slot, ok := catalog.SlotFromAskAction(name); ok {
		if spec, ok := cat.ForSlot(slot); ok {
			return a.askSlot(spec, slot), true
		}
	}
	return nil, false
}

func (a *Actions) askSlot(spec *form.Spec, slot string) Action {
	return func(ctx context.Context, tr *Tracker) (types.Events, error) {
		var events types.Events
		if tr.Slots.String(types.RequestedSlot) != slot {
			events = append(events, types.SetSlot(types.RequestedSlot, types.Value(slot)))
		}
		if tr.Slots.String(types.ActiveForm) != spec.Name {
			events = append(events, types.SetSlot(types.ActiveForm, types.Value(spec.Name)))
		}
		return append(events, a.renderer.RenderAsk(&dialogue.Request{Spec: spec, Slot: slot, Slots: tr.Slots})), nil
	}
}

// formLoop asks the next missing slot of spec, or hands over to its submit action.
func (a *Actions) formLoop(spec *form.Spec) Action {
	return func(ctx context.Context, tr *Tracker) (types.Events, error) {
		if next, _ := form.NextSlot(spec, tr.Slots, ""); next != "" {
			return a.askSlot(spec, next)(ctx, tr)
		}
		return submitForm(spec)(ctx, tr)
	}
}

func submitForm(spec *form.Spec) Action {
	return func(ctx context.Context, tr *Tracker) (types.Events, error) {
		if missing := form.Missing(spec, tr.Slots); len(missing) > 0 {
			return types.Events{
				types.Message(fmt.Sprintf(spec.Messages.Missing, missing[0])),
				types.Followup(catalog.AskAction(missing[0])),
			}, nil
		}
		if !spec.Confirm {
			return types.Events{types.ClearSlot(types.RequestedSlot), types.Followup(spec.SubmitAction)}, nil
		}
		return types.Events{
			types.ClearSlot(types.RequestedSlot),
			types.Confirm(form.Summarize(spec, tr.Slots), form.ConfirmButtons()),
		}, nil
	}
}

func (a *Actions) query(spec *form.Spec) Action {
	return func(ctx context.Context, tr *Tracker) (types.Events, error) {
		if a.executor == nil {
			return nil, errors.New("no query executor configured")
		}
		var events types.Events
		res, err := a.executor.Execute(ctx, spec, tr.Slots)
		if errors.Is(err, query.ErrUnsupported) {
			slog.Warn("Query not supported", "form", spec.Name, "error", err)
			return types.Events{types.Followup(ActionDeleteSlotForms)}, nil
		}
		if err != nil {
			slog.Error("Query failed", "form", spec.Name, "error", err)
			events = append(events, types.Message(query.Message(err)))
			if errors.Is(err, query.ErrMissingInfo) {
				return append(events, types.Followup(agent.ActionListen)), nil
			}
		} else {
			for _, msg := range res.Messages {
				events = append(events, types.Message(msg))
			}
		}
		events = append(events, spec.ClearEvents()...)
		return append(events, types.Followup(agent.ActionListen)), nil
	}
}

func clearForm(spec *form.Spec) Action {
	return func(ctx context.Context, tr *Tracker) (types.Events, error) {
		return spec.ClearEvents(), nil
	}
}

func askUserQuery(ctx context.Context, tr *Tracker) (types.Events, error) {
	return types.Events{types.Message(UserQueryPrompt), types.Followup(agent.ActionListen)}, nil
}

func (a *Actions) innohub(ctx context.Context, tr *Tracker) (types.Events, error) {
	answer := aiquery.ErrorMessage
	if a.ai != nil {
		text, err := a.ai.Answer(ctx, &aiquery.Question{
			SenderID: tr.Turn.SenderID,
			Text:     tr.Turn.Text,
			Scope:    tr.Slots.String(types.ScopeSlot),
		})
		if err != nil {
			slog.Error("AI query failed", "scope", tr.Slots.String(types.ScopeSlot), "error", err)
		} else {
			answer = text
		}
	}
	return types.Events{
		types.Message(answer),
		types.ClearSlot(types.ScopeSlot),
		types.Followup(agent.ActionListen),
	}, nil
}

// restart clears the form whose selector is set, in catalog order.
func restart(ctx context.Context, tr *Tracker) (types.Events, error) {
	for _, spec := range tr.Catalog.Forms() {
		if spec.Selector != "" && tr.Slots.Has(spec.Selector) {
			return append(spec.ClearEvents(), types.Followup(agent.ActionListen)), nil
		}
	}
	if spec, ok := tr.Catalog.Active(tr.Slots); ok {
		return append(spec.ClearEvents(), types.Followup(agent.ActionListen)), nil
	}
	return types.Events{types.Followup(agent.ActionListen)}, nil
}

func menu(ctx context.Context, tr *Tracker) (types.Events, error) {
	return types.Events{
		{Kind: types.EventMessage, Text: catalog.MenuText, Buttons: tr.Catalog.Menu()},
	}, nil
}

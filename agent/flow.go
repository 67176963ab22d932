package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"

	"github.com/tbxark/talkform/catalog"
	"github.com/tbxark/talkform/command"
	"github.com/tbxark/talkform/dialogue"
	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/types"
)

// Controller runs one step of a form: control tokens, confirmation, validation of the answer
// and the next question. It never performs I/O beyond its collaborators.
type Controller struct {
	commandParser command.Parser
	renderer      dialogue.Renderer
	manager       FormManager
}

type ControllerOption func(*Controller)

func WithFormManager(m FormManager) ControllerOption {
	return func(c *Controller) {
		c.manager = m
	}
}

func NewController(commandParser command.Parser, renderer dialogue.Renderer, opts ...ControllerOption) *Controller {
	c := &Controller{
		commandParser: commandParser,
		renderer:      renderer,
		manager:       NopFormManager{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewLocalController recognizes control tokens and confirmation buttons only.
func NewLocalController(cities dialogue.CityLookup, opts ...ControllerOption) *Controller {
	return NewController(command.NewLocalCommandParser(), dialogue.NewLocalRenderer(cities), opts...)
}

// NewToolBasedController falls back to the chat model for replies the control tokens miss.
func NewToolBasedController(cities dialogue.CityLookup, chatModel model.ToolCallingChatModel, opts ...ControllerOption) (*Controller, error) {
	toolParser, err := command.NewToolBasedCommandParser(chatModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool-based command parser: %w", err)
	}
	parser := command.NewFailbackCommandParser(command.NewLocalCommandParser(), toolParser)
	return NewController(parser, dialogue.NewLocalRenderer(cities), opts...), nil
}

// Phase derives the phase of a form from the slot snapshot.
func Phase(spec *form.Spec, slots types.Slots) types.Phase {
	if spec.Confirm && len(form.Missing(spec, slots)) == 0 {
		return types.PhaseConfirming
	}
	return types.PhaseCollecting
}

func (c *Controller) Invoke(ctx context.Context, req *Request) (resp *Response, err error) {
	ctx = callbacks.EnsureRunInfo(ctx, "FormController", "Controller")
	ctx = callbacks.OnStart(ctx, map[string]any{
		"request": req,
	})
	defer func() {
		if r := recover(); r != nil {
			callbacks.OnError(ctx, fmt.Errorf("panic in Controller.Invoke: %v", r))
			panic(r)
		}
	}()

	resp, err = c.runInternal(ctx, req)
	if err != nil {
		callbacks.OnError(ctx, err)
		return nil, err
	}
	callbacks.OnEnd(ctx, map[string]any{
		"response": resp,
		"phase":    string(resp.Phase),
	})
	return resp, nil
}

func (c *Controller) runInternal(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.Spec == nil || req.Turn == nil {
		return c.handleError(errors.New("request needs a form and a turn"), types.PhaseCollecting), nil
	}
	spec, turn := req.Spec, req.Turn
	slots := turn.Slots.Clone()
	if slots == nil {
		slots = types.Slots{}
	}

	phase := Phase(spec, slots)
	toolRequest := &types.ToolRequest{
		Form:   spec.Name,
		Phase:  phase,
		Slots:  slots,
		Fields: spec.Fields(),
		MessagePair: types.MessagePair{
			Question: req.LatestQuestion,
			Answer:   turn.Text,
		},
	}
	if phase == types.PhaseConfirming {
		toolRequest.Summary = form.Sentence(spec, slots)
	}

	cmd, err := c.commandParser.ParseCommand(ctx, &command.Request{Spec: spec, Intent: turn.LastIntent, Tool: toolRequest})
	if err != nil {
		slog.Warn("Command parser failed", "form", spec.Name, "error", err)
	}
	slog.Debug("Parsed command", "form", spec.Name, "phase", phase, "command", cmd)

	switch cmd {
	case command.Exit:
		return c.exit(ctx, spec, slots), nil
	case command.Redirect:
		return c.redirect(spec), nil
	case command.Back:
		return c.back(ctx, spec, slots), nil
	}

	if phase == types.PhaseConfirming {
		switch cmd {
		case command.Confirm:
			return c.submit(ctx, spec, slots), nil
		case command.Deny:
			return c.deny(ctx, spec, slots), nil
		default:
			return c.confirm(spec, slots, nil), nil
		}
	}
	return c.collect(ctx, spec, slots, turn), nil
}

func (c *Controller) collect(ctx context.Context, spec *form.Spec, slots types.Slots, turn *types.Turn) *Response {
	var events types.Events

	target, value := "", turn.Text
	switch requested, ok := slots.Get(types.RequestedSlot); {
	case spec.FillsFromIntent(turn.LastIntent):
		target = turn.LastIntent
		if value == "" || strings.HasPrefix(value, "/") {
			value = turn.LastIntent
		}
	case len(spec.Flow.SlotIntents) > 0:
		// guided flows fill slots from intents only
	case ok && spec.HasSlot(requested):
		target = requested
	}

	if target != "" {
		res := form.Validate(spec, target, value)
		slog.Debug("Validated slot", "form", spec.Name, "slot", target, "accepted", res.Accepted)
		events = append(events, setAll(slots, target, res.Derived)...)
		if !res.Accepted {
			events = append(events,
				types.Message(res.Message),
				types.Followup(catalog.AskAction(target)),
			)
			return &Response{Phase: types.PhaseCollecting, Events: events}
		}
	}
	return c.advance(ctx, spec, slots, turn.LastIntent, events)
}

// advance applies autofills until a slot must be asked, or finishes the form.
func (c *Controller) advance(ctx context.Context, spec *form.Spec, slots types.Slots, intent string, events types.Events) *Response {
	for range len(spec.Slots()) + 1 {
		next, reask := form.NextSlot(spec, slots, intent)
		if next == "" {
			break
		}
		if !reask {
			if fill, ok := spec.Autofill(next, slots); ok {
				slog.Debug("Autofilled slot", "form", spec.Name, "slot", next)
				events = append(events, setAll(slots, next, fill)...)
				continue
			}
		}
		if reask {
			slots[next] = nil
			events = append(events, types.ClearSlot(next))
		}
		events = append(events, types.SetSlot(types.RequestedSlot, types.Value(next)))
		if slots.String(types.ActiveForm) != spec.Name {
			events = append(events, types.SetSlot(types.ActiveForm, types.Value(spec.Name)))
		}
		ask := c.renderer.RenderAsk(&dialogue.Request{Spec: spec, Slot: next, Slots: slots})
		events = append(events, ask)
		slog.Debug("Asking slot", "form", spec.Name, "slot", next)
		return &Response{Phase: types.PhaseCollecting, Events: events, Question: ask.Text}
	}

	if spec.Confirm {
		return c.confirm(spec, slots, append(events, types.ClearSlot(types.RequestedSlot)))
	}
	return c.complete(ctx, spec, slots, events)
}

func (c *Controller) confirm(spec *form.Spec, slots types.Slots, events types.Events) *Response {
	text := form.Summarize(spec, slots)
	events = append(events, types.Confirm(text, form.ConfirmButtons()))
	return &Response{Phase: types.PhaseConfirming, Events: events, Question: text}
}

// complete submits a form that needs no confirmation.
func (c *Controller) complete(ctx context.Context, spec *form.Spec, slots types.Slots, events types.Events) *Response {
	events = append(events, types.ClearSlot(types.RequestedSlot))
	if spec.Messages.Submitted != "" {
		events = append(events, types.Message(spec.Messages.Submitted))
	}
	events = append(events, types.Followup(spec.SubmitAction))
	c.observe(ctx, spec, slots, true)
	return &Response{Phase: types.PhaseSubmitted, Events: events}
}

func (c *Controller) submit(ctx context.Context, spec *form.Spec, slots types.Slots) *Response {
	events := types.Events{
		types.Message(spec.Messages.Processing),
		types.ClearSlot(types.RequestedSlot),
		types.ClearSlot(types.ActiveForm),
		types.Followup(spec.QueryAction),
	}
	c.observe(ctx, spec, slots, true)
	return &Response{Phase: types.PhaseSubmitted, Events: events}
}

func (c *Controller) deny(ctx context.Context, spec *form.Spec, slots types.Slots) *Response {
	events := types.Events(spec.ClearEvents())
	events = append(events, types.Message(spec.Messages.Denied), types.Followup(ActionListen))
	c.observe(ctx, spec, slots, false)
	return &Response{Phase: types.PhaseCancelled, Events: events}
}

func (c *Controller) exit(ctx context.Context, spec *form.Spec, slots types.Slots) *Response {
	events := types.Events(spec.ClearEvents())
	if !spec.SilentExit {
		events = append(events, types.Message(spec.Messages.Cancelled))
	}
	events = append(events, types.Followup(ActionListen))
	c.observe(ctx, spec, slots, false)
	return &Response{Phase: types.PhaseCancelled, Events: events}
}

// back clears the latest answer and asks for it again. With nothing answered it repeats
// the current question.
func (c *Controller) back(ctx context.Context, spec *form.Spec, slots types.Slots) *Response {
	var events types.Events
	if last := form.LastAnswered(spec, slots); last != "" {
		slog.Debug("Going back", "form", spec.Name, "slot", last)
		slots[last] = nil
		events = append(events, types.ClearSlot(last))
	}
	return c.advance(ctx, spec, slots, "", events)
}

func (c *Controller) redirect(spec *form.Spec) *Response {
	events := types.Events(spec.ClearEvents())
	events = append(events,
		types.SetSlot(types.ScopeSlot, types.Value(spec.Redirect.Scope)),
		types.Followup(spec.Redirect.Action),
	)
	return &Response{Phase: types.PhaseRedirected, Events: events}
}

func (c *Controller) observe(ctx context.Context, spec *form.Spec, slots types.Slots, submitted bool) {
	var err error
	if submitted {
		err = c.manager.Submit(ctx, spec, slots)
	} else {
		err = c.manager.Cancel(ctx, spec, slots)
	}
	if err != nil {
		slog.Warn("Form manager failed", "form", spec.Name, "submitted", submitted, "error", err)
	}
}

func (c *Controller) handleError(err error, phase types.Phase) *Response {
	return &Response{
		Phase:  phase,
		Events: types.Events{types.Message("Lo siento, no he podido procesar tu mensaje.")},
		Metadata: map[string]string{
			"error": err.Error(),
		},
	}
}

// setAll writes values into slots and returns the matching set_slot events, first slot first.
func setAll(slots types.Slots, first string, values map[string]*string) types.Events {
	names := make([]string, 0, len(values))
	for name := range values {
		if name != first {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	if _, ok := values[first]; ok {
		names = append([]string{first}, names...)
	}
	events := make(types.Events, 0, len(names))
	for _, name := range names {
		slots[name] = values[name]
		events = append(events, types.SetSlot(name, values[name]))
	}
	return events
}

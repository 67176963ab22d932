package bot

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/rs/xid"

	"github.com/tbxark/talkform/agent"
	"github.com/tbxark/talkform/catalog"
	"github.com/tbxark/talkform/dialogue"
	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/intent"
	"github.com/tbxark/talkform/patch"
	"github.com/tbxark/talkform/types"
)

// RestartIntent restarts the conversation from any state.
const RestartIntent = "restart"

const defaultMaxFollowups = 8

// Source yields the catalog in use. *catalog.Catalog and *catalog.Loader both satisfy it.
type Source interface {
	Current() *catalog.Catalog
}

type sourceCities struct {
	src Source
}

func (s sourceCities) Cities(country string) []string {
	return s.src.Current().Cities(country)
}

// Cities looks cities up in whatever catalog src currently holds.
func Cities(src Source) dialogue.CityLookup {
	return sourceCities{src: src}
}

// Runner turns one user message into the bot's events: it routes the turn to a form, runs
// the controller and executes the followup chain in process.
type Runner struct {
	src          Source
	recognizer   intent.Recognizer
	controller   *agent.Controller
	actions      *Actions
	states       agent.StateReadWriter
	maxFollowups int
	onIntent     map[string]string
	sessions     sessionLocks
}

// sessionLocks serializes the turns of each session from state load to state save.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (s *sessionLocks) lock(key string) (unlock func()) {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = map[string]*sessionLock{}
	}
	l, ok := s.locks[key]
	if !ok {
		l = &sessionLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

type Option func(*Runner)

// WithStateReadWriter keeps slots between turns for callers that do not send them.
func WithStateReadWriter(states agent.StateReadWriter) Option {
	return func(r *Runner) {
		r.states = states
	}
}

func WithRecognizer(rec intent.Recognizer) Option {
	return func(r *Runner) {
		r.recognizer = rec
	}
}

// WithIntentAction runs action when intent arrives outside of any form.
func WithIntentAction(intent, action string) Option {
	return func(r *Runner) {
		r.onIntent[intent] = action
	}
}

func WithMaxFollowups(n int) Option {
	return func(r *Runner) {
		r.maxFollowups = n
	}
}

func NewRunner(src Source, controller *agent.Controller, actions *Actions, opts ...Option) *Runner {
	r := &Runner{
		src:          src,
		recognizer:   intent.NewLocalRecognizer(nil),
		controller:   controller,
		actions:      actions,
		maxFollowups: defaultMaxFollowups,
		onIntent:     maps.Clone(defaultIntentActions),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Runner) HandleTurn(ctx context.Context, turn *types.Turn) (*types.TurnResult, error) {
	if turn == nil {
		return nil, fmt.Errorf("nil turn")
	}
	cat := r.src.Current()
	result := &types.TurnResult{TurnID: xid.New().String()}
	if turn.SenderID != "" {
		ctx = agent.WithStateKey(ctx, turn.SenderID)
	}

	if r.states != nil {
		defer r.sessions.lock(turn.SenderID)()
	}
	state, stateful, err := r.load(ctx, cat, turn)
	if err != nil {
		return nil, err
	}
	slots := state.Slots

	t := *turn
	t.Slots = slots
	name, err := r.recognizer.Recognize(ctx, &t)
	if err != nil {
		slog.Warn("Intent recognition failed", "error", err)
	}
	t.LastIntent = name
	slog.Debug("Handling turn", "turn_id", result.TurnID, "sender", t.SenderID, "intent", name)

	var events types.Events
	latest := ""
	spec, cleared := r.route(cat, &t, slots)
	switch {
	case name == RestartIntent:
		events, slots, err = r.chain(ctx, cat, &t, slots, types.Events{types.Followup(ActionRestart)})
		result.Phase = types.PhaseCancelled
	case spec != nil:
		result.Form = spec.Name
		if slots, err = fold(slots, cleared); err != nil {
			return nil, err
		}
		t.Slots = slots
		resp, ierr := r.controller.Invoke(ctx, &agent.Request{Spec: spec, Turn: &t, LatestQuestion: state.LatestQuestion})
		if ierr != nil {
			return nil, ierr
		}
		result.Phase = resp.Phase
		switch {
		case resp.Question != "":
			latest = resp.Question
		case resp.Phase == types.PhaseCollecting:
			latest = state.LatestQuestion
		}
		events, slots, err = r.chain(ctx, cat, &t, slots, append(cleared, resp.Events...))
	case r.onIntent[name] != "":
		events, slots, err = r.chain(ctx, cat, &t, slots, types.Events{types.Followup(r.onIntent[name])})
	case slots.Has(types.ScopeSlot):
		events, slots, err = r.chain(ctx, cat, &t, slots, types.Events{types.Followup(ActionInnohub)})
	default:
		events, slots, err = r.chain(ctx, cat, &t, slots, types.Events{types.Followup(ActionMenu)})
	}
	if err != nil {
		return nil, err
	}

	if stateful {
		state.Slots = slots
		state.LatestQuestion = latest
		if err := r.states.Write(ctx, state); err != nil {
			return nil, fmt.Errorf("save state: %w", err)
		}
	}
	result.Events = events
	result.Slots = slots
	return result, nil
}

// load returns the slots the turn starts from. Caller slots win; in stateful mode they are
// applied as a patch over the stored session.
func (r *Runner) load(ctx context.Context, cat *catalog.Catalog, turn *types.Turn) (*agent.State, bool, error) {
	if r.states == nil {
		return &agent.State{Slots: turn.Slots.Clone()}, false, nil
	}
	state, err := r.states.Read(ctx)
	if err != nil {
		return nil, true, fmt.Errorf("load state: %w", err)
	}
	if state.Slots == nil {
		state.Slots = types.Slots{}
	}
	if len(turn.Slots) == 0 {
		return state, true, nil
	}
	ops := patch.GeneratePatchesFromInitial(state.Slots, turn.Slots)
	if err := patch.ValidatePatchOperations(ops, allowedPaths(cat)); err != nil {
		return nil, true, fmt.Errorf("invalid slots: %w", err)
	}
	slots, err := patch.ApplyRFC6902(state.Slots, ops)
	if err != nil {
		return nil, true, err
	}
	state.Slots = slots
	return state, true, nil
}

func allowedPaths(cat *catalog.Catalog) map[string]bool {
	names := []string{types.RequestedSlot, types.ActiveForm, types.ScopeSlot, types.UserNameSlot}
	for _, spec := range cat.Forms() {
		names = append(names, spec.Slots()...)
	}
	return patch.AllowedPaths(names...)
}

// route picks the form of the turn: the explicit form, the form the intent activates, or
// the active one. An activation restarts the form, returning the events that clear it.
func (r *Runner) route(cat *catalog.Catalog, t *types.Turn, slots types.Slots) (*form.Spec, types.Events) {
	if t.Form != "" {
		if spec, ok := cat.Form(t.Form); ok {
			return spec, nil
		}
		slog.Warn("Unknown form", "form", t.Form)
	}
	if spec, ok := cat.ForIntent(t.LastIntent); ok {
		active, hasActive := cat.Active(slots)
		if hasActive && active.Name == spec.Name && spec.FillsFromIntent(t.LastIntent) {
			return spec, nil
		}
		toClear := spec.ClearEvents()
		if hasActive && active.Name != spec.Name {
			toClear = append(active.ClearEvents(), toClear...)
		}
		var cleared types.Events
		seen := map[string]bool{}
		for _, e := range toClear {
			if _, set := slots[e.Slot]; set && !seen[e.Slot] {
				seen[e.Slot] = true
				cleared = append(cleared, e)
			}
		}
		return spec, cleared
	}
	if spec, ok := cat.Active(slots); ok {
		return spec, nil
	}
	return nil, nil
}

// chain folds events into slots and runs their followups until the bot listens again.
// Executed followups are dropped from the output.
func (r *Runner) chain(ctx context.Context, cat *catalog.Catalog, t *types.Turn, slots types.Slots, events types.Events) (types.Events, types.Slots, error) {
	var out types.Events
	pending := events
	for depth := 0; ; depth++ {
		var err error
		if slots, err = fold(slots, pending); err != nil {
			return nil, nil, err
		}
		action, ok := pending.Followup()
		for _, e := range pending {
			if e.Kind != types.EventFollowup {
				out = append(out, e)
			}
		}
		if !ok || action == "" || action == agent.ActionListen {
			return out, slots, nil
		}
		if depth >= r.maxFollowups {
			slog.Warn("Followup chain too deep", "action", action, "depth", depth)
			return append(out, types.Followup(action)), slots, nil
		}
		fn, found := r.actions.Lookup(cat, action)
		if !found {
			slog.Warn("Unknown followup action", "action", action)
			return append(out, types.Followup(action)), slots, nil
		}
		slog.Debug("Running followup", "action", action, "depth", depth)
		pending, err = fn(ctx, &Tracker{Catalog: cat, Turn: t, Slots: slots})
		if err != nil {
			slog.Error("Followup failed", "action", action, "error", err)
			pending = types.Events{types.Message(genericError)}
		}
	}
}

const genericError = "Lo siento, no he podido procesar tu mensaje."

// fold applies the set_slot events of events to slots.
func fold(slots types.Slots, events types.Events) (types.Slots, error) {
	ops := patch.FromEvents(events)
	if len(ops) == 0 {
		if slots == nil {
			return types.Slots{}, nil
		}
		return slots, nil
	}
	next, err := patch.ApplyRFC6902(slots, ops)
	if err != nil {
		return nil, fmt.Errorf("apply slot events: %w", err)
	}
	return next, nil
}

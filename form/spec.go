package form

import (
	"fmt"
	"slices"
	"strings"
	"text/template"

	"github.com/tbxark/talkform/types"
)

const (
	DefaultInvalidMessage    = "Opción no válida. Por favor, haz clic en el botón con la opción deseada."
	DefaultCancelledMessage  = "Has cancelado el formulario.\n Haz clic en **Análisis de Datos** para comenzar de nuevo."
	DefaultDeniedMessage     = "🔄 Haz clic en **Análisis de Datos** para comenzar de nuevo."
	DefaultProcessingMessage = "🔄 Procesando consulta..."
	DefaultConfirmHeader     = "⚠️ Verifica tu consulta:\n\n"
	DefaultMissingMessage    = "Necesitamos más información. Por favor, completa '%s' antes de continuar."

	DefaultExitToken     = "❌ Salir"
	DefaultRedirectToken = "Consulta IA"
	BackToken            = "volver"

	ConfirmPayload = "/confirmar_envio"
	DenyPayload    = "/corregir_envio"
	ConfirmIntent  = "confirmar_envio"
	DenyIntent     = "corregir_envio"

	// SelectorPlaceholder in an autofill value is replaced by the selector slot value.
	SelectorPlaceholder = "$selector"
)

// Pretty rewrites a slot value for display. Replace wins over Lower.
type Pretty struct {
	Replace  map[string]string
	Lower    bool
	WithYear bool
}

type Prompt struct {
	Text       string
	BySelector map[string]string
	Options    []string
	// CitiesOf names the country slot whose cities become the options.
	CitiesOf string
	// ExtraButtons are appended after the options.
	ExtraButtons []types.Button
}

type SlotRule struct {
	Name        string
	DisplayName string
	Description string
	// Predicate is nil for slots accepted by the generic validator.
	Predicate *Predicate
	Pretty    Pretty
	Prompt    Prompt
	// Reask lets an injected extra slot be asked again while it holds a value.
	Reask bool
}

type Derivation struct {
	Slot  string
	Value string
	Sets  map[string]string
}

type Autofill struct {
	Slot         string
	When         []string
	WhenContains []string
	Sets         map[string]string
}

func (a Autofill) matches(selector string) bool {
	if slices.Contains(a.When, selector) {
		return true
	}
	lower := strings.ToLower(selector)
	for _, sub := range a.WhenContains {
		if sub != "" && strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// Flow carries the resolver rules of guided flows. The zero value disables them.
type Flow struct {
	IntentToSlot     map[string]string
	SlotIntents      map[string]bool
	EndIntent        string
	FlowEndSlot      string
	StartSlot        string
	EndSlot          string
	InterruptionSlot string
	WelcomeIntent    string
}

type Tokens struct {
	Exit     string
	Redirect string
}

type Redirect struct {
	Scope  string
	Action string
}

type Messages struct {
	Invalid       string
	Cancelled     string
	Denied        string
	Processing    string
	ConfirmHeader string
	Missing       string
	// Submitted is optional; unconfirmed forms say it when they complete.
	Submitted string
}

// Spec is the compiled, read-only definition of one form.
type Spec struct {
	Name        string
	Title       string
	Description string
	Selector    string
	Base        []string
	Rules       map[string]*SlotRule
	Derivations []Derivation
	Autofills   []Autofill
	Flow        Flow
	Tokens      Tokens
	Redirect    Redirect
	Confirm     bool
	// SilentExit suppresses the cancel message when the exit token is used.
	SilentExit        bool
	QueryAction       string
	SubmitAction      string
	Summaries         map[string]string
	YearSlot          string
	Year              string
	Messages          Messages
	ActivationIntents []string
	Menu              string
	Payload           string

	templates map[string]*template.Template
	slots     []string
}

// Compile fills defaults, checks references and parses the summary templates.
func (s *Spec) Compile() error {
	if s.Name == "" {
		return fmt.Errorf("form name is required")
	}
	if len(s.Base) == 0 {
		return fmt.Errorf("form %q: no base slots", s.Name)
	}
	if s.Rules == nil {
		s.Rules = map[string]*SlotRule{}
	}
	s.Messages = s.Messages.withDefaults()
	if s.Tokens.Exit == "" {
		s.Tokens.Exit = DefaultExitToken
	}
	if s.Selector != "" && !slices.Contains(s.Base, s.Selector) {
		return fmt.Errorf("form %q: selector %q is not a base slot", s.Name, s.Selector)
	}
	if s.Confirm && s.QueryAction == "" {
		return fmt.Errorf("form %q: confirmed forms need a query action", s.Name)
	}
	if !s.Confirm && s.SubmitAction == "" {
		return fmt.Errorf("form %q: unconfirmed forms need a submit action", s.Name)
	}
	if s.Redirect.Scope != "" && s.Redirect.Action == "" {
		return fmt.Errorf("form %q: redirect scope without action", s.Name)
	}
	for name, rule := range s.Rules {
		rule.Name = name
		if rule.DisplayName == "" {
			rule.DisplayName = name
		}
		if rule.Predicate != nil {
			if err := rule.Predicate.check(); err != nil {
				return fmt.Errorf("form %q slot %q: %w", s.Name, name, err)
			}
		}
	}
	for _, af := range s.Autofills {
		if _, ok := af.Sets[af.Slot]; !ok {
			return fmt.Errorf("form %q: autofill for %q does not set it", s.Name, af.Slot)
		}
	}

	s.templates = make(map[string]*template.Template, len(s.Summaries))
	for tipo, text := range s.Summaries {
		tmpl, err := template.New(tipo).Option("missingkey=zero").Parse(text)
		if err != nil {
			return fmt.Errorf("form %q summary %q: %w", s.Name, tipo, err)
		}
		s.templates[tipo] = tmpl
	}

	s.slots = s.collectSlots()
	return nil
}

func (m Messages) withDefaults() Messages {
	if m.Invalid == "" {
		m.Invalid = DefaultInvalidMessage
	}
	if m.Cancelled == "" {
		m.Cancelled = DefaultCancelledMessage
	}
	if m.Denied == "" {
		m.Denied = DefaultDeniedMessage
	}
	if m.Processing == "" {
		m.Processing = DefaultProcessingMessage
	}
	if m.ConfirmHeader == "" {
		m.ConfirmHeader = DefaultConfirmHeader
	}
	if m.Missing == "" {
		m.Missing = DefaultMissingMessage
	}
	return m
}

func (s *Spec) collectSlots() []string {
	var out []string
	add := func(names ...string) {
		for _, n := range names {
			if n != "" && !slices.Contains(out, n) {
				out = append(out, n)
			}
		}
	}
	add(s.Base...)
	for _, d := range s.Derivations {
		add(sortedKeys(d.Sets)...)
	}
	for _, af := range s.Autofills {
		add(sortedKeys(af.Sets)...)
	}
	for _, intent := range sortedKeys(s.Flow.IntentToSlot) {
		add(s.Flow.IntentToSlot[intent])
	}
	add(sortedKeys(s.Flow.SlotIntents)...)
	add(s.Flow.StartSlot, s.Flow.EndSlot, s.Flow.FlowEndSlot, s.Flow.InterruptionSlot)
	return out
}

// Slots lists every slot the form owns: base slots first, then derived and flow slots.
func (s *Spec) Slots() []string {
	if s.slots == nil {
		s.slots = s.collectSlots()
	}
	return s.slots
}

func (s *Spec) HasSlot(name string) bool {
	return slices.Contains(s.Slots(), name)
}

func (s *Spec) Rule(name string) (*SlotRule, bool) {
	rule, ok := s.Rules[name]
	return rule, ok
}

// SelectorValue returns the chosen query archetype.
func (s *Spec) SelectorValue(slots types.Slots) string {
	if s.Selector == "" {
		return ""
	}
	return slots.String(s.Selector)
}

// YearFor returns the year a submission refers to: the year slot when the form has one,
// otherwise the form's fixed year parameter.
func (s *Spec) YearFor(slots types.Slots) string {
	if s.YearSlot != "" {
		if v, ok := slots.Get(s.YearSlot); ok {
			return v
		}
	}
	return s.Year
}

// IsActive reports whether the snapshot carries data for this form.
func (s *Spec) IsActive(slots types.Slots) bool {
	if s.Selector != "" {
		return slots.Has(s.Selector)
	}
	for _, name := range s.Slots() {
		if slots.Has(name) {
			return true
		}
	}
	return false
}

// FillsFromIntent reports whether intent directly sets the slot of the same name.
func (s *Spec) FillsFromIntent(intent string) bool {
	return intent != "" && s.Flow.SlotIntents[intent] && s.HasSlot(intent)
}

// Fields describes the base slots, for prompts and schemas.
func (s *Spec) Fields() []types.FieldInfo {
	out := make([]types.FieldInfo, 0, len(s.Base))
	for _, name := range s.Base {
		info := types.FieldInfo{Slot: name, DisplayName: name, Required: true}
		if rule, ok := s.Rules[name]; ok {
			info.DisplayName = rule.DisplayName
			info.Description = rule.Description
		}
		out = append(out, info)
	}
	return out
}

// ClearEvents clears every form slot plus the runtime bookkeeping slots.
func (s *Spec) ClearEvents() []types.Event {
	names := append(slices.Clone(s.Slots()), types.RequestedSlot, types.ActiveForm)
	out := make([]types.Event, 0, len(names))
	for _, name := range names {
		out = append(out, types.ClearSlot(name))
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

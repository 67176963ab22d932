package catalog

import (
	"fmt"
	"slices"

	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/types"
)

// Domains is the shared value file: named value lists plus the cities of every market.
type Domains struct {
	Domains map[string][]string `yaml:"domains"`
	Cities  map[string][]string `yaml:"cities"`
}

// Definition is the YAML shape of one form file.
type Definition struct {
	Name              string            `yaml:"name"`
	Title             string            `yaml:"title"`
	Description       string            `yaml:"description"`
	Order             int               `yaml:"order"`
	Menu              string            `yaml:"menu"`
	Payload           string            `yaml:"payload"`
	ActivationIntents []string          `yaml:"activation_intents"`
	Selector          string            `yaml:"selector"`
	Confirm           bool              `yaml:"confirm"`
	SilentExit        bool              `yaml:"silent_exit"`
	QueryAction       string            `yaml:"query_action"`
	SubmitAction      string            `yaml:"submit_action"`
	YearSlot          string            `yaml:"year_slot"`
	Year              string            `yaml:"year"`
	Tokens            TokensDef         `yaml:"tokens"`
	Redirect          RedirectDef       `yaml:"redirect"`
	Messages          MessagesDef       `yaml:"messages"`
	Flow              FlowDef           `yaml:"flow"`
	Slots             []SlotDef         `yaml:"slots"`
	Derive            []DeriveDef       `yaml:"derive"`
	Autofill          []AutofillDef     `yaml:"autofill"`
	Summaries         map[string]string `yaml:"summaries"`
}

type TokensDef struct {
	Exit     string `yaml:"exit"`
	Redirect string `yaml:"redirect"`
}

type RedirectDef struct {
	Scope  string `yaml:"scope"`
	Action string `yaml:"action"`
}

type MessagesDef struct {
	Invalid       string `yaml:"invalid"`
	Cancelled     string `yaml:"cancelled"`
	Denied        string `yaml:"denied"`
	Processing    string `yaml:"processing"`
	ConfirmHeader string `yaml:"confirm_header"`
	Missing       string `yaml:"missing"`
	Submitted     string `yaml:"submitted"`
}

type FlowDef struct {
	IntentToSlot     map[string]string `yaml:"intent_to_slot"`
	SlotIntents      []string          `yaml:"slot_intents"`
	EndIntent        string            `yaml:"end_intent"`
	FlowEndSlot      string            `yaml:"flow_end_slot"`
	StartSlot        string            `yaml:"start_slot"`
	EndSlot          string            `yaml:"end_slot"`
	InterruptionSlot string            `yaml:"interruption_slot"`
	WelcomeIntent    string            `yaml:"welcome_intent"`
}

// SlotDef declares one slot. Slots marked Extra are only asked when the flow injects them.
type SlotDef struct {
	Name        string    `yaml:"name"`
	DisplayName string    `yaml:"display_name"`
	Description string    `yaml:"description"`
	Extra       bool      `yaml:"extra"`
	Reask       bool      `yaml:"reask"`
	OneOf       []string  `yaml:"one_of"`
	Domain      string    `yaml:"domain"`
	Validator   string    `yaml:"validator"`
	Min         int       `yaml:"min"`
	Max         int       `yaml:"max"`
	Pretty      PrettyDef `yaml:"pretty"`
	Prompt      PromptDef `yaml:"prompt"`
}

type PrettyDef struct {
	Replace  map[string]string `yaml:"replace"`
	Lower    bool              `yaml:"lower"`
	WithYear bool              `yaml:"with_year"`
}

type PromptDef struct {
	Text       string            `yaml:"text"`
	BySelector map[string]string `yaml:"by_selector"`
	Options    []string          `yaml:"options"`
	CitiesOf   string            `yaml:"cities_of"`
	Buttons    []ButtonDef       `yaml:"buttons"`
	// Free prompts offer no option buttons.
	Free bool `yaml:"free"`
}

type ButtonDef struct {
	Title   string `yaml:"title"`
	Payload string `yaml:"payload"`
}

type DeriveDef struct {
	Slot  string            `yaml:"slot"`
	Value string            `yaml:"value"`
	Set   map[string]string `yaml:"set"`
}

type AutofillDef struct {
	Slot         string            `yaml:"slot"`
	When         []string          `yaml:"when"`
	WhenContains []string          `yaml:"when_contains"`
	Set          map[string]string `yaml:"set"`
}

// Compile turns a definition into an immutable form spec, resolving named domains.
func (d *Definition) Compile(domains *Domains) (*form.Spec, error) {
	spec := &form.Spec{
		Name:              d.Name,
		Title:             d.Title,
		Description:       d.Description,
		Selector:          d.Selector,
		Rules:             make(map[string]*form.SlotRule, len(d.Slots)),
		Confirm:           d.Confirm,
		SilentExit:        d.SilentExit,
		QueryAction:       d.QueryAction,
		SubmitAction:      d.SubmitAction,
		Summaries:         d.Summaries,
		YearSlot:          d.YearSlot,
		Year:              d.Year,
		ActivationIntents: d.ActivationIntents,
		Menu:              d.Menu,
		Payload:           d.Payload,
		Tokens:            form.Tokens{Exit: d.Tokens.Exit, Redirect: d.Tokens.Redirect},
		Redirect:          form.Redirect{Scope: d.Redirect.Scope, Action: d.Redirect.Action},
		Messages: form.Messages{
			Invalid:       d.Messages.Invalid,
			Cancelled:     d.Messages.Cancelled,
			Denied:        d.Messages.Denied,
			Processing:    d.Messages.Processing,
			ConfirmHeader: d.Messages.ConfirmHeader,
			Missing:       d.Messages.Missing,
			Submitted:     d.Messages.Submitted,
		},
		Flow: form.Flow{
			IntentToSlot:     d.Flow.IntentToSlot,
			EndIntent:        d.Flow.EndIntent,
			FlowEndSlot:      d.Flow.FlowEndSlot,
			StartSlot:        d.Flow.StartSlot,
			EndSlot:          d.Flow.EndSlot,
			InterruptionSlot: d.Flow.InterruptionSlot,
			WelcomeIntent:    d.Flow.WelcomeIntent,
		},
	}
	if spec.Redirect.Scope != "" && spec.Tokens.Redirect == "" {
		spec.Tokens.Redirect = form.DefaultRedirectToken
	}
	if len(d.Flow.SlotIntents) > 0 {
		spec.Flow.SlotIntents = make(map[string]bool, len(d.Flow.SlotIntents))
		for _, intent := range d.Flow.SlotIntents {
			spec.Flow.SlotIntents[intent] = true
		}
	}

	for _, sd := range d.Slots {
		if sd.Name == "" {
			return nil, fmt.Errorf("form %q: slot without name", d.Name)
		}
		if _, dup := spec.Rules[sd.Name]; dup {
			return nil, fmt.Errorf("form %q: duplicate slot %q", d.Name, sd.Name)
		}
		rule, err := sd.compile(domains)
		if err != nil {
			return nil, fmt.Errorf("form %q slot %q: %w", d.Name, sd.Name, err)
		}
		spec.Rules[sd.Name] = rule
		if !sd.Extra {
			spec.Base = append(spec.Base, sd.Name)
		}
	}
	for _, dd := range d.Derive {
		spec.Derivations = append(spec.Derivations, form.Derivation{Slot: dd.Slot, Value: dd.Value, Sets: dd.Set})
	}
	for _, ad := range d.Autofill {
		spec.Autofills = append(spec.Autofills, form.Autofill{
			Slot:         ad.Slot,
			When:         ad.When,
			WhenContains: ad.WhenContains,
			Sets:         ad.Set,
		})
	}
	for _, intent := range d.ActivationIntents {
		if intent == "" {
			return nil, fmt.Errorf("form %q: empty activation intent", d.Name)
		}
	}
	if err := spec.Compile(); err != nil {
		return nil, err
	}
	return spec, nil
}

func (sd SlotDef) compile(domains *Domains) (*form.SlotRule, error) {
	rule := &form.SlotRule{
		Name:        sd.Name,
		DisplayName: sd.DisplayName,
		Description: sd.Description,
		Reask:       sd.Reask,
		Pretty: form.Pretty{
			Replace:  sd.Pretty.Replace,
			Lower:    sd.Pretty.Lower,
			WithYear: sd.Pretty.WithYear,
		},
		Prompt: form.Prompt{
			Text:       sd.Prompt.Text,
			BySelector: sd.Prompt.BySelector,
			Options:    slices.Clone(sd.Prompt.Options),
			CitiesOf:   sd.Prompt.CitiesOf,
		},
	}
	for _, b := range sd.Prompt.Buttons {
		rule.Prompt.ExtraButtons = append(rule.Prompt.ExtraButtons, types.Button{Title: b.Title, Payload: b.Payload})
	}

	switch {
	case len(sd.OneOf) > 0:
		rule.Predicate = &form.Predicate{Kind: form.PredicateOneOf, Values: slices.Clone(sd.OneOf)}
	case sd.Domain != "":
		values, ok := domains.Domains[sd.Domain]
		if !ok {
			return nil, fmt.Errorf("unknown domain %q", sd.Domain)
		}
		rule.Predicate = &form.Predicate{Kind: form.PredicateOneOf, Values: values}
	case sd.Validator != "":
		p := &form.Predicate{Kind: form.PredicateKind(sd.Validator), Min: sd.Min, Max: sd.Max}
		if p.Kind == form.PredicateCity {
			p.Cities = domains.Cities
		}
		rule.Predicate = p
	}

	// Options default to the accepted values unless the prompt is free text.
	if len(rule.Prompt.Options) == 0 && !sd.Prompt.Free && rule.Predicate != nil && rule.Predicate.Kind == form.PredicateOneOf {
		rule.Prompt.Options = slices.Clone(rule.Predicate.Values)
	}
	if rule.Prompt.CitiesOf != "" && (rule.Predicate == nil || rule.Predicate.Kind != form.PredicateCity) {
		return nil, fmt.Errorf("cities_of needs the city validator")
	}
	return rule, nil
}

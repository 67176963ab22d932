package dialogue

import (
	"fmt"

	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/types"
)

// LocalRenderer builds questions from the catalog prompts.
type LocalRenderer struct {
	Cities CityLookup
}

func NewLocalRenderer(cities CityLookup) *LocalRenderer {
	return &LocalRenderer{Cities: cities}
}

// RenderAsk returns one ask event: the prompt text, the exit button, the option buttons and
// the prompt's extra buttons, in that order.
func (r *LocalRenderer) RenderAsk(req *Request) types.Event {
	spec := req.Spec
	rule, ok := spec.Rule(req.Slot)
	if !ok {
		return types.Ask(req.Slot, fmt.Sprintf("Indica %s:", req.Slot), []types.Button{exitButton(spec)})
	}

	text := rule.Prompt.Text
	if byTipo, ok := rule.Prompt.BySelector[spec.SelectorValue(req.Slots)]; ok {
		text = byTipo
	}
	if text == "" {
		text = fmt.Sprintf("Indica %s:", rule.DisplayName)
	}

	buttons := []types.Button{exitButton(spec)}
	for _, option := range r.options(rule, req.Slots) {
		buttons = append(buttons, types.Button{Title: option, Payload: option})
	}
	buttons = append(buttons, rule.Prompt.ExtraButtons...)
	return types.Ask(req.Slot, text, buttons)
}

func (r *LocalRenderer) options(rule *form.SlotRule, slots types.Slots) []string {
	if rule.Prompt.CitiesOf == "" {
		return rule.Prompt.Options
	}
	if r.Cities == nil {
		return nil
	}
	country, ok := slots.Get(rule.Prompt.CitiesOf)
	if !ok {
		return nil
	}
	cities := r.Cities.Cities(country)
	if len(cities) == 0 {
		return nil
	}
	return append([]string{form.AllCities}, cities...)
}

func exitButton(spec *form.Spec) types.Button {
	return types.Button{Title: ExitTitle, Payload: spec.Tokens.Exit}
}

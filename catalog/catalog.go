package catalog

import (
	"slices"
	"strings"

	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/types"
)

// MenuText introduces the list of analysis forms.
const MenuText = "Selecciona el tema de interés"

// Catalog is an immutable set of compiled forms and the value domains they use.
type Catalog struct {
	forms   []*form.Spec
	byName  map[string]*form.Spec
	domains Domains
}

func newCatalog(specs []*form.Spec, domains Domains) *Catalog {
	c := &Catalog{
		forms:   specs,
		byName:  make(map[string]*form.Spec, len(specs)),
		domains: domains,
	}
	for _, s := range specs {
		c.byName[s.Name] = s
	}
	return c
}

// Current returns the catalog itself, so a fixed catalog serves wherever a Loader does.
func (c *Catalog) Current() *Catalog { return c }

func (c *Catalog) Form(name string) (*form.Spec, bool) {
	s, ok := c.byName[name]
	return s, ok
}

// Forms returns the forms in catalog order.
func (c *Catalog) Forms() []*form.Spec {
	return slices.Clone(c.forms)
}

// ForIntent returns the form an intent activates.
func (c *Catalog) ForIntent(intent string) (*form.Spec, bool) {
	if intent == "" {
		return nil, false
	}
	for _, s := range c.forms {
		if slices.Contains(s.ActivationIntents, intent) {
			return s, true
		}
	}
	return nil, false
}

// ForSlot returns the first form owning slot.
func (c *Catalog) ForSlot(slot string) (*form.Spec, bool) {
	for _, s := range c.forms {
		if s.HasSlot(slot) {
			return s, true
		}
	}
	return nil, false
}

// ForAction returns the form an action name belongs to: its query, submit or redirect
// action, its submit form action "action_submit_<name>_form", or the form itself "<name>_form".
func (c *Catalog) ForAction(action string) (*form.Spec, bool) {
	for _, s := range c.forms {
		switch action {
		case s.QueryAction, s.SubmitAction, s.Redirect.Action, SubmitFormAction(s.Name), FormAction(s.Name):
			if action != "" {
				return s, true
			}
		}
	}
	return nil, false
}

// Active returns the first form, in catalog order, that holds data in slots.
func (c *Catalog) Active(slots types.Slots) (*form.Spec, bool) {
	if name, ok := slots.Get(types.ActiveForm); ok {
		if s, ok := c.byName[name]; ok {
			return s, true
		}
	}
	for _, s := range c.forms {
		if s.IsActive(slots) {
			return s, true
		}
	}
	return nil, false
}

// Cities returns the cities offered for a market, in file order.
func (c *Catalog) Cities(country string) []string {
	return slices.Clone(c.domains.Cities[country])
}

func (c *Catalog) Countries() []string {
	out := make([]string, 0, len(c.domains.Cities))
	for k := range c.domains.Cities {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (c *Catalog) Domain(name string) ([]string, bool) {
	v, ok := c.domains.Domains[name]
	return slices.Clone(v), ok
}

// Menu lists one button per form that has a menu entry.
func (c *Catalog) Menu() []types.Button {
	var out []types.Button
	for _, s := range c.forms {
		if s.Menu == "" || s.Payload == "" {
			continue
		}
		out = append(out, types.Button{Title: s.Menu, Payload: s.Payload})
	}
	return out
}

func SubmitFormAction(name string) string { return "action_submit_" + name + "_form" }

func FormAction(name string) string { return name + "_form" }

// AskAction is the action that renders the question of slot.
func AskAction(slot string) string { return "action_ask_" + slot }

// SlotFromAskAction extracts the slot of an ask action.
func SlotFromAskAction(action string) (string, bool) {
	slot, ok := strings.CutPrefix(action, "action_ask_")
	return slot, ok && slot != ""
}

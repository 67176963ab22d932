package form

import (
	"slices"

	"github.com/tbxark/talkform/types"
)

// extras computes the additional slots injected for lastIntent and the base list
// after the end-of-flow adjustment. The branches are mutually exclusive.
func extras(spec *Spec, slots types.Slots, lastIntent string) ([]string, []string) {
	f := spec.Flow
	base := slices.Clone(spec.Base)
	var extra []string
	switch {
	case lastIntent == "":
	case f.EndIntent != "" && lastIntent == f.EndIntent && slots.Has(f.FlowEndSlot):
		base = slices.DeleteFunc(base, func(s string) bool { return s == f.StartSlot })
		extra = append(extra, f.EndSlot)
	case f.IntentToSlot[lastIntent] != "":
		extra = append(extra, f.IntentToSlot[lastIntent])
	case f.InterruptionSlot != "" && !f.SlotIntents[lastIntent] && lastIntent != f.WelcomeIntent:
		extra = append(extra, f.InterruptionSlot)
	}
	return extra, base
}

// Resolve returns the ordered slots still to be asked this turn: injected extras first,
// then the base slots in form order. Filled slots are left out unless they are injected
// extras flagged for re-asking. Each slot appears at most once.
func Resolve(spec *Spec, slots types.Slots, lastIntent string) []string {
	extra, base := extras(spec, slots, lastIntent)
	out := make([]string, 0, len(extra)+len(base))
	for _, name := range extra {
		if slices.Contains(out, name) {
			continue
		}
		if slots.Has(name) && !spec.reaskable(name) {
			continue
		}
		out = append(out, name)
	}
	for _, name := range base {
		if slices.Contains(out, name) || slots.Has(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// NextSlot returns the slot to ask next, and whether it already holds a value that must be
// cleared before asking again. An empty name means the form is complete.
func NextSlot(spec *Spec, slots types.Slots, lastIntent string) (string, bool) {
	pending := Resolve(spec, slots, lastIntent)
	if len(pending) == 0 {
		return "", false
	}
	return pending[0], slots.Has(pending[0])
}

// Missing lists the base slots that hold no value, ignoring intent driven extras.
func Missing(spec *Spec, slots types.Slots) []string {
	return Resolve(spec, slots, "")
}

func (s *Spec) reaskable(name string) bool {
	rule, ok := s.Rules[name]
	return ok && rule.Reask
}

// Autofill returns the slot values implied by the selector when slot is about to be asked.
func (s *Spec) Autofill(slot string, slots types.Slots) (map[string]*string, bool) {
	selector := s.SelectorValue(slots)
	if selector == "" {
		return nil, false
	}
	for _, af := range s.Autofills {
		if af.Slot != slot || !af.matches(selector) {
			continue
		}
		out := make(map[string]*string, len(af.Sets))
		for name, v := range af.Sets {
			if v == SelectorPlaceholder {
				v = selector
			}
			out[name] = types.Value(v)
		}
		return out, true
	}
	return nil, false
}

// LastAnswered returns the latest base slot the user answered, skipping values that an
// autofill or a derivation of another slot would set again. It returns "" when none is set.
func LastAnswered(spec *Spec, slots types.Slots) string {
	for _, name := range slices.Backward(spec.Base) {
		if !slots.Has(name) {
			continue
		}
		if _, ok := spec.Autofill(name, slots); ok || spec.derived(name, slots) {
			continue
		}
		return name
	}
	return ""
}

func (s *Spec) derived(name string, slots types.Slots) bool {
	value := slots.String(name)
	for _, d := range s.Derivations {
		if d.Slot != name && slots.String(d.Slot) == d.Value && d.Sets[name] == value {
			return true
		}
	}
	return false
}

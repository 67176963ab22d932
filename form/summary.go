package form

import (
	"bytes"
	"log/slog"
	"strings"

	"github.com/tbxark/talkform/types"
)

func (p Pretty) apply(value, year string) string {
	if r, ok := p.Replace[value]; ok {
		value = r
	} else if p.Lower {
		value = strings.ToLower(value)
	}
	if p.WithYear && year != "" {
		value = value + " " + year
	}
	return value
}

// PrettyValues renders every form slot for display, keyed by slot name. The year in use
// is available under "year".
func PrettyValues(spec *Spec, slots types.Slots) map[string]string {
	year := spec.YearFor(slots)
	out := make(map[string]string, len(spec.Slots())+1)
	for _, name := range spec.Slots() {
		value := slots.String(name)
		if rule, ok := spec.Rules[name]; ok && value != "" {
			value = rule.Pretty.apply(value, year)
		}
		out[name] = value
	}
	out["year"] = year
	return out
}

// Sentence renders the summary sentence of the selected query archetype, or "" when the
// archetype has no summary.
func Sentence(spec *Spec, slots types.Slots) string {
	tmpl, ok := spec.templates[spec.SelectorValue(slots)]
	if !ok {
		return ""
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, PrettyValues(spec, slots)); err != nil {
		slog.Warn("Summary render failed", "form", spec.Name, "error", err)
		return ""
	}
	return buf.String()
}

// Summarize renders the confirmation text shown before submitting.
func Summarize(spec *Spec, slots types.Slots) string {
	return spec.Messages.ConfirmHeader + Sentence(spec, slots)
}

func ConfirmButtons() []types.Button {
	return []types.Button{
		{Title: "✅ Continuar", Payload: ConfirmPayload},
		{Title: "❌ Corregir", Payload: DenyPayload},
	}
}

package bot

import (
	"context"
	"math/rand/v2"
	"regexp"
	"slices"
	"strings"

	"github.com/tbxark/talkform/agent"
	"github.com/tbxark/talkform/types"
)

const (
	ActionSetUserName     = "action_set_user_name"
	ActionFallback        = "action_handle_fallback"
	ActionOutOfScope      = "action_handle_out_of_scope"
	ActionDeleteSlotForms = "action_delete_slot_forms"
	ActionCheckQuery      = "action_comprobar_query"

	// NameEntity is the entity holding the name the user introduced themselves with.
	NameEntity = "name"
	// NamePlaceholder is replaced by the user name, or removed, in fallback replies.
	NamePlaceholder = "{name_placeholder}"

	UnavailableMessage = "ℹ️ Resultado no disponible para esta versión del asistente. Disculpa las molestias."
	CheckQueryMessage  = "👀 Para poder realizar ese tipo de consultas, por favor, haz clic en el botón de análisis de datos. Este botón aparecerá en la parte inferior del chat cuando te encuentres en la sección de ventana de oportunidad."
)

// Intents answered outside of any form, with the action each one runs.
var defaultIntentActions = map[string]string{
	"saludo":         ActionSetUserName,
	"presentarse":    ActionSetUserName,
	"nlu_fallback":   ActionFallback,
	"out_of_scope":   ActionOutOfScope,
	"consulta_datos": ActionCheckQuery,
}

var (
	fallbackReplies = []string{
		"Perdona {name_placeholder}, no te he entendido. ¿Puedes reformular tu mensaje?",
		"Lo siento {name_placeholder}, no he entendido tu mensaje. Prueba con otras palabras o usa el menú de análisis.",
	}
	outOfScopeReplies = []string{
		"Lo siento {name_placeholder}, solo puedo ayudarte con el análisis de datos turísticos de la Comunitat Valenciana.",
		"Esa consulta queda fuera de lo que sé hacer, {name_placeholder}. Elige un análisis del menú para empezar.",
	}
)

var lowercaseParticles = []string{"de", "la", "las", "del", "los"}

// FixName capitalizes each part of a name, keeping Spanish particles in lower case.
func FixName(name string) string {
	parts := strings.Fields(name)
	for i, p := range parts {
		lower := strings.ToLower(p)
		if slices.Contains(lowercaseParticles, lower) {
			parts[i] = lower
			continue
		}
		r := []rune(lower)
		parts[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(parts, " ")
}

var (
	repeatedSpace   = regexp.MustCompile(`\s{2,}`)
	spaceBeforeMark = regexp.MustCompile(`\s([,.?])`)
)

// CleanReply tidies a reply after placeholder removal: it collapses runs of whitespace,
// drops spaces before punctuation and doubled commas.
func CleanReply(s string) string {
	s = repeatedSpace.ReplaceAllString(s, " ")
	s = spaceBeforeMark.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, ",.", ".")
	s = strings.ReplaceAll(s, ",,", ",")
	return s
}

func setUserName(ctx context.Context, tr *Tracker) (types.Events, error) {
	if name := FixName(tr.Turn.Entities[NameEntity]); name != "" {
		return types.Events{
			types.Message("Es un placer conocerte, " + name + "."),
			types.SetSlot(types.UserNameSlot, types.Value(name)),
			types.Followup(agent.ActionListen),
		}, nil
	}
	text := "¡Hola! ¿En qué puedo ayudarte hoy?"
	if name := FixName(tr.Slots.String(types.UserNameSlot)); name != "" {
		text = "¡Hola de nuevo, " + name + "! ¿En qué puedo ayudarte hoy?"
	}
	return types.Events{types.Message(text), types.Followup(agent.ActionListen)}, nil
}

func personalReply(replies []string) Action {
	return func(ctx context.Context, tr *Tracker) (types.Events, error) {
		reply := replies[rand.IntN(len(replies))]
		reply = strings.ReplaceAll(reply, NamePlaceholder, tr.Slots.String(types.UserNameSlot))
		reply = CleanReply(strings.TrimSpace(reply))
		return types.Events{types.Message(reply), types.Followup(agent.ActionListen)}, nil
	}
}

// deleteQueryForms apologizes for a result the assistant cannot produce and clears every
// form that runs a query.
func deleteQueryForms(ctx context.Context, tr *Tracker) (types.Events, error) {
	events := types.Events{types.Message(UnavailableMessage)}
	seen := map[string]bool{}
	for _, spec := range tr.Catalog.Forms() {
		if spec.QueryAction == "" {
			continue
		}
		for _, e := range spec.ClearEvents() {
			if !seen[e.Slot] {
				seen[e.Slot] = true
				events = append(events, e)
			}
		}
	}
	return append(events, types.Followup(agent.ActionListen)), nil
}

// checkQuery points free data questions to the AI button, unless the user was just asked
// for one.
func checkQuery(ctx context.Context, tr *Tracker) (types.Events, error) {
	if tr.Slots.Has(types.ScopeSlot) {
		return types.Events{types.Followup(ActionInnohub)}, nil
	}
	return types.Events{types.Message(CheckQueryMessage), types.Followup(agent.ActionListen)}, nil
}

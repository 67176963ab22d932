package bot_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbxark/talkform/bot"
	"github.com/tbxark/talkform/catalog"
	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/query"
	"github.com/tbxark/talkform/types"
)

func TestFixName(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"ana", "Ana"},
		{"MARÍA DE LOS ÁNGELES garcía", "María de los Ángeles García"},
		{"  josé   del  río ", "José del Río"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := bot.FixName(tt.in); got != tt.want {
			t.Errorf("FixName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanReply(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"Perdona , no te he entendido.", "Perdona, no te he entendido."},
		{"Hola,  ¿qué tal ?", "Hola, ¿qué tal?"},
		{"Queda fuera de lo que sé hacer, .", "Queda fuera de lo que sé hacer."},
		{"uno,, dos", "uno, dos"},
	}
	for _, tt := range tests {
		if got := bot.CleanReply(tt.in); got != tt.want {
			t.Errorf("CleanReply(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func (h *harness) intent(t *testing.T, sender, name string, entities map[string]string) *types.TurnResult {
	t.Helper()
	res, err := h.runner.HandleTurn(context.Background(), &types.Turn{SenderID: sender, LastIntent: name, Entities: entities})
	require.NoError(t, err, "intent %q", name)
	return res
}

func TestGreetingRemembersUserName(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res := h.intent(t, "u1", "saludo", nil)
	assert.Equal(t, []string{"¡Hola! ¿En qué puedo ayudarte hoy?"}, res.Events.Texts())

	res = h.intent(t, "u1", "presentarse", map[string]string{bot.NameEntity: "ana DE LA fuente"})
	assert.Equal(t, []string{"Es un placer conocerte, Ana de la Fuente."}, res.Events.Texts())
	assert.Equal(t, "Ana de la Fuente", res.Slots.String(types.UserNameSlot))

	res = h.intent(t, "u1", "saludo", nil)
	assert.Equal(t, []string{"¡Hola de nuevo, Ana de la Fuente! ¿En qué puedo ayudarte hoy?"}, res.Events.Texts())

	res = h.intent(t, "u2", "saludo", nil)
	assert.Equal(t, []string{"¡Hola! ¿En qué puedo ayudarte hoy?"}, res.Events.Texts())
}

func TestFallbackRepliesUseName(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	anonymous := []string{
		"Perdona, no te he entendido. ¿Puedes reformular tu mensaje?",
		"Lo siento, no he entendido tu mensaje. Prueba con otras palabras o usa el menú de análisis.",
	}
	outOfScope := []string{
		"Lo siento, solo puedo ayudarte con el análisis de datos turísticos de la Comunitat Valenciana.",
		"Esa consulta queda fuera de lo que sé hacer. Elige un análisis del menú para empezar.",
	}
	for range 5 {
		res := h.intent(t, "u1", "nlu_fallback", nil)
		require.Len(t, res.Events.Texts(), 1)
		assert.Contains(t, anonymous, res.Events.Texts()[0])

		res = h.intent(t, "u1", "out_of_scope", nil)
		require.Len(t, res.Events.Texts(), 1)
		assert.Contains(t, outOfScope, res.Events.Texts()[0])
	}

	h.intent(t, "u1", "presentarse", map[string]string{bot.NameEntity: "luis"})
	named := []string{
		"Perdona Luis, no te he entendido. ¿Puedes reformular tu mensaje?",
		"Lo siento Luis, no he entendido tu mensaje. Prueba con otras palabras o usa el menú de análisis.",
	}
	for range 5 {
		res := h.intent(t, "u1", "nlu_fallback", nil)
		require.Len(t, res.Events.Texts(), 1)
		assert.Contains(t, named, res.Events.Texts()[0])
	}
}

func TestIntentInsideFormGoesToForm(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.say(t, "u1", "/talk2numbers_busquedas")

	res := h.intent(t, "u1", "saludo", nil)
	assert.Equal(t, "busquedas", res.Form)
	assert.NotContains(t, res.Events.Texts(), "¡Hola! ¿En qué puedo ayudarte hoy?")
}

func TestCheckQueryPointsToAIButton(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res := h.intent(t, "u1", "consulta_datos", nil)
	assert.Equal(t, []string{bot.CheckQueryMessage}, res.Events.Texts())
	assert.Empty(t, h.ai.questions)

	res, err := h.runner.HandleTurn(context.Background(), &types.Turn{
		SenderID:   "u1",
		LastIntent: "consulta_datos",
		Text:       "¿Cuál es la ventana media desde Francia?",
		Slots:      types.Slots{types.ScopeSlot: types.Value("FC_LUC_OPPORTUNITY_WINDOW")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Unas 1.200 búsquedas."}, res.Events.Texts())
	require.Len(t, h.ai.questions, 1)
	assert.Equal(t, "FC_LUC_OPPORTUNITY_WINDOW", h.ai.questions[0].Scope)
	assert.False(t, res.Slots.Has(types.ScopeSlot))
}

func TestCustomIntentAction(t *testing.T) {
	t.Parallel()
	h := newHarness(t, bot.WithIntentAction("ayuda", bot.ActionMenu))
	res := h.intent(t, "u1", "ayuda", nil)
	assert.Equal(t, []string{catalog.MenuText}, res.Events.Texts())
}

func TestUnsupportedQueryResetsQueryForms(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.exec.err = fmt.Errorf("%w: %q", query.ErrUnsupported, "ranking")
	slots := types.Slots{
		"tipo_consulta":   types.Value("Ventana media y búsquedas desde un mercado de origen"),
		"destino_b":       types.Value("Valencia"),
		"origen_pais_b":   types.Value("Francia"),
		"origen_ciudad_b": types.Value("Todas"),
		"anno_b":          types.Value("2024"),
		"date_filter":     types.Value("Todos los meses"),
		"consulta":        types.Value("Ventana media y búsquedas desde un mercado de origen"),
		"destino_v":       types.Value("Alicante"),
	}
	res, err := h.runner.HandleTurn(context.Background(), &types.Turn{SenderID: "u1", Text: form.ConfirmPayload, Slots: slots})
	require.NoError(t, err)
	assert.Equal(t, []string{form.DefaultProcessingMessage, bot.UnavailableMessage}, res.Events.Texts())
	for name := range slots {
		assert.False(t, res.Slots.Has(name), "slot %s", name)
	}
	assert.False(t, res.Slots.Has(types.ActiveForm))
}

func TestDeleteSlotFormsAction(t *testing.T) {
	t.Parallel()
	cat, err := catalog.Default()
	require.NoError(t, err)
	actions := bot.NewActions(nil)
	got := runAction(t, cat, actions, bot.ActionDeleteSlotForms, types.Slots{})

	cleared := map[string]bool{}
	for _, e := range got {
		if e.Kind == types.EventSetSlot {
			assert.Nil(t, e.Value)
			assert.False(t, cleared[e.Slot], "slot %s cleared twice", e.Slot)
			cleared[e.Slot] = true
		}
	}
	for _, name := range []string{"tipo_consulta", "consulta", "tipo_consulta_v", "date_filter_v", types.ActiveForm} {
		assert.True(t, cleared[name], "slot %s", name)
	}
	assert.False(t, cleared["LT_boton_inicio"], "the guided flow runs no query")
	assert.Equal(t, []string{bot.UnavailableMessage}, got.Texts())
}

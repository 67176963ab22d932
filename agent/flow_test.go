package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tbxark/talkform/agent"
	"github.com/tbxark/talkform/catalog"
	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/types"
)

type recordingManager struct {
	submitted []string
	cancelled []string
	err       error
}

func (m *recordingManager) Submit(ctx context.Context, spec *form.Spec, slots types.Slots) error {
	m.submitted = append(m.submitted, spec.Name)
	return m.err
}

func (m *recordingManager) Cancel(ctx context.Context, spec *form.Spec, slots types.Slots) error {
	m.cancelled = append(m.cancelled, spec.Name)
	return m.err
}

func newController(t *testing.T) (*agent.Controller, *catalog.Catalog, *recordingManager) {
	t.Helper()
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	m := &recordingManager{}
	return agent.NewLocalController(c, agent.WithFormManager(m)), c, m
}

func mustForm(t *testing.T, c *catalog.Catalog, name string) *form.Spec {
	t.Helper()
	spec, ok := c.Form(name)
	if !ok {
		t.Fatalf("form %q not found", name)
	}
	return spec
}

func invoke(t *testing.T, c *agent.Controller, spec *form.Spec, turn *types.Turn) *agent.Response {
	t.Helper()
	resp, err := c.Invoke(context.Background(), &agent.Request{Spec: spec, Turn: turn})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	return resp
}

func renders(events types.Events) int {
	n := 0
	for _, e := range events {
		if e.Renders() {
			n++
		}
	}
	return n
}

// apply folds set_slot events into slots the way the runtime does.
func apply(slots types.Slots, events types.Events) types.Slots {
	out := slots.Clone()
	out.Merge(events.SlotUpdates())
	return out
}

func TestBusquedasConversation(t *testing.T) {
	t.Parallel()
	ctrl, c, m := newController(t)
	spec := mustForm(t, c, "busquedas")
	slots := types.Slots{}

	resp := invoke(t, ctrl, spec, &types.Turn{LastIntent: "talk2numbers_busquedas", Slots: slots})
	if resp.Phase != types.PhaseCollecting {
		t.Fatalf("phase = %s", resp.Phase)
	}
	want := types.Events{
		types.SetSlot(types.RequestedSlot, types.Value("tipo_consulta")),
		types.SetSlot(types.ActiveForm, types.Value("busquedas")),
	}
	if diff := cmp.Diff(want, resp.Events[:2]); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	if ask := resp.Events[2]; ask.Kind != types.EventAsk || ask.Slot != "tipo_consulta" {
		t.Fatalf("ask = %+v", ask)
	}
	if resp.Question == "" {
		t.Error("question not reported")
	}
	slots = apply(slots, resp.Events)

	steps := []struct {
		text string
		next string
	}{
		{"Ranking de mercados de origen por ventana media", "destino_b"},
		{"Valencia", "anno_b"},
		{"2025", "date_filter"},
	}
	for _, step := range steps {
		resp = invoke(t, ctrl, spec, &types.Turn{LastIntent: "inform", Text: step.text, Slots: slots})
		if renders(resp.Events) != 1 {
			t.Fatalf("%q: renders = %d", step.text, renders(resp.Events))
		}
		slots = apply(slots, resp.Events)
		if got := slots.String(types.RequestedSlot); got != step.next {
			t.Fatalf("%q: requested_slot = %q, want %q", step.text, got, step.next)
		}
	}
	if slots.String("origen_pais_b") != "Todos" || slots.String("origen_ciudad_b") != "Todas" {
		t.Fatalf("market ranking autofill missing: %v", slots.Plain())
	}

	resp = invoke(t, ctrl, spec, &types.Turn{LastIntent: "inform", Text: "Marzo", Slots: slots})
	if resp.Phase != types.PhaseConfirming {
		t.Fatalf("phase = %s", resp.Phase)
	}
	last := resp.Events[len(resp.Events)-1]
	wantText := "⚠️ Verifica tu consulta:\n\nRanking de mercados de origen según la ventana media a Valencia en marzo 2025."
	if last.Kind != types.EventConfirm || last.Text != wantText {
		t.Fatalf("confirm = %+v", last)
	}
	if diff := cmp.Diff(form.ConfirmButtons(), last.Buttons); diff != "" {
		t.Fatalf("buttons (-want +got):\n%s", diff)
	}
	slots = apply(slots, resp.Events)
	if slots.Has(types.RequestedSlot) {
		t.Error("requested_slot still set while confirming")
	}
	if agent.Phase(spec, slots) != types.PhaseConfirming {
		t.Fatal("snapshot does not derive the confirming phase")
	}

	resp = invoke(t, ctrl, spec, &types.Turn{LastIntent: form.ConfirmIntent, Text: form.ConfirmPayload, Slots: slots})
	want = types.Events{
		types.Message("🔄 Procesando consulta..."),
		types.ClearSlot(types.RequestedSlot),
		types.ClearSlot(types.ActiveForm),
		types.Followup("action_query_snowflake_busquedas"),
	}
	if resp.Phase != types.PhaseSubmitted {
		t.Fatalf("phase = %s", resp.Phase)
	}
	if diff := cmp.Diff(want, resp.Events); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"busquedas"}, m.submitted); diff != "" {
		t.Errorf("submitted (-want +got):\n%s", diff)
	}
}

func fullBusquedas() types.Slots {
	return types.Slots{
		"tipo_consulta":   types.Value("Ventana media y búsquedas desde un mercado de origen"),
		"destino_b":       types.Value("Alicante"),
		"origen_pais_b":   types.Value("Francia"),
		"origen_ciudad_b": types.Value("Todas"),
		"anno_b":          types.Value("2024"),
		"date_filter":     types.Value("Todos los meses"),
		"consulta":        types.Value("Ventana media y búsquedas desde un mercado de origen"),
		types.ActiveForm:  types.Value("busquedas"),
	}
}

func TestExitOverridesValidation(t *testing.T) {
	t.Parallel()
	ctrl, c, m := newController(t)
	spec := mustForm(t, c, "busquedas")

	for _, slots := range []types.Slots{
		{types.RequestedSlot: types.Value("destino_b"), "tipo_consulta": types.Value("Ranking de mercados de origen por ventana media")},
		fullBusquedas(),
	} {
		resp := invoke(t, ctrl, spec, &types.Turn{Text: "❌ Salir", Slots: slots})
		if resp.Phase != types.PhaseCancelled {
			t.Fatalf("phase = %s", resp.Phase)
		}
		want := types.Events(spec.ClearEvents())
		want = append(want, types.Message(spec.Messages.Cancelled), types.Followup(agent.ActionListen))
		if diff := cmp.Diff(want, resp.Events); diff != "" {
			t.Fatalf("events (-want +got):\n%s", diff)
		}
	}
	if len(m.cancelled) != 2 {
		t.Errorf("cancelled = %v", m.cancelled)
	}
}

func TestRedirect(t *testing.T) {
	t.Parallel()
	ctrl, c, _ := newController(t)

	tests := []struct {
		form   string
		scope  string
		action string
	}{
		{"busquedas", "FC_LUC_SEARCHS_PREDICTION", "action_ask_user_query_b"},
		{"ventana", "FC_LUC_OPPORTUNITY_WINDOW", "action_ask_user_query_v"},
	}
	for _, tt := range tests {
		spec := mustForm(t, c, tt.form)
		resp := invoke(t, ctrl, spec, &types.Turn{
			Text:  "Consulta IA",
			Slots: types.Slots{types.RequestedSlot: types.Value(spec.Selector)},
		})
		if resp.Phase != types.PhaseRedirected {
			t.Fatalf("%s: phase = %s", tt.form, resp.Phase)
		}
		n := len(resp.Events)
		want := types.Events{
			types.SetSlot(types.ScopeSlot, types.Value(tt.scope)),
			types.Followup(tt.action),
		}
		if diff := cmp.Diff(want, resp.Events[n-2:]); diff != "" {
			t.Fatalf("%s: events (-want +got):\n%s", tt.form, diff)
		}
		if renders(resp.Events) != 0 {
			t.Errorf("%s: redirect rendered output", tt.form)
		}
	}

	// forms without a redirect scope treat the token as an ordinary answer
	spec := mustForm(t, c, "cluster")
	resp := invoke(t, ctrl, spec, &types.Turn{
		Text:  "Consulta IA",
		Slots: types.Slots{types.RequestedSlot: types.Value(spec.Selector)},
	})
	if resp.Phase != types.PhaseCollecting {
		t.Fatalf("cluster: phase = %s", resp.Phase)
	}
	if _, ok := resp.Events.Followup(); !ok {
		t.Error("cluster: expected re-ask followup for an invalid answer")
	}
}

func TestInvalidAnswer(t *testing.T) {
	t.Parallel()
	ctrl, c, _ := newController(t)
	spec := mustForm(t, c, "busquedas")
	slots := types.Slots{
		"tipo_consulta":     types.Value("Ranking de mercados de origen por ventana media"),
		types.RequestedSlot: types.Value("destino_b"),
	}
	resp := invoke(t, ctrl, spec, &types.Turn{LastIntent: "inform", Text: "Madrid", Slots: slots})
	want := types.Events{
		types.ClearSlot("destino_b"),
		types.Message(spec.Messages.Invalid),
		types.Followup("action_ask_destino_b"),
	}
	if diff := cmp.Diff(want, resp.Events); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	if resp.Phase != types.PhaseCollecting {
		t.Errorf("phase = %s", resp.Phase)
	}
}

func TestCountryAllDerivesCity(t *testing.T) {
	t.Parallel()
	ctrl, c, _ := newController(t)
	spec := mustForm(t, c, "busquedas")
	slots := types.Slots{
		"tipo_consulta":     types.Value("Ventana media y búsquedas desde una ciudad de origen"),
		"destino_b":         types.Value("Valencia"),
		types.RequestedSlot: types.Value("origen_pais_b"),
	}
	resp := invoke(t, ctrl, spec, &types.Turn{Text: "Todos", Slots: slots})
	want := types.Events{
		types.SetSlot("origen_pais_b", types.Value("Todos")),
		types.SetSlot("origen_ciudad_b", types.Value("Todas")),
		types.SetSlot(types.RequestedSlot, types.Value("anno_b")),
		types.SetSlot(types.ActiveForm, types.Value("busquedas")),
	}
	if diff := cmp.Diff(want, resp.Events[:4]); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestConfirmingPhase(t *testing.T) {
	t.Parallel()
	ctrl, c, m := newController(t)
	spec := mustForm(t, c, "busquedas")

	t.Run("deny", func(t *testing.T) {
		resp := invoke(t, ctrl, spec, &types.Turn{LastIntent: form.DenyIntent, Text: form.DenyPayload, Slots: fullBusquedas()})
		if resp.Phase != types.PhaseCancelled {
			t.Fatalf("phase = %s", resp.Phase)
		}
		n := len(resp.Events)
		want := types.Events{
			types.Message("🔄 Haz clic en **Análisis de Datos** para comenzar de nuevo."),
			types.Followup(agent.ActionListen),
		}
		if diff := cmp.Diff(want, resp.Events[n-2:]); diff != "" {
			t.Fatalf("events (-want +got):\n%s", diff)
		}
		if got := apply(fullBusquedas(), resp.Events); got.Has("destino_b") || got.Has(types.ActiveForm) {
			t.Errorf("slots not cleared: %v", got.Plain())
		}
	})

	t.Run("anything else re-renders", func(t *testing.T) {
		resp := invoke(t, ctrl, spec, &types.Turn{LastIntent: "saludo", Text: "hola", Slots: fullBusquedas()})
		if resp.Phase != types.PhaseConfirming {
			t.Fatalf("phase = %s", resp.Phase)
		}
		if len(resp.Events) != 1 || resp.Events[0].Kind != types.EventConfirm {
			t.Fatalf("events = %+v", resp.Events)
		}
		want := "⚠️ Verifica tu consulta:\n\nVentana media y número de búsquedas totales desde Francia a Alicante en todos los meses 2024."
		if resp.Events[0].Text != want {
			t.Errorf("text = %q", resp.Events[0].Text)
		}
	})

	t.Run("confirm with a missing slot never submits", func(t *testing.T) {
		slots := fullBusquedas()
		slots["date_filter"] = nil
		resp := invoke(t, ctrl, spec, &types.Turn{LastIntent: form.ConfirmIntent, Text: form.ConfirmPayload, Slots: slots})
		if resp.Phase == types.PhaseSubmitted {
			t.Fatal("submitted with a missing slot")
		}
		slots = apply(slots, resp.Events)
		if slots.String(types.RequestedSlot) != "date_filter" {
			t.Errorf("requested_slot = %q", slots.String(types.RequestedSlot))
		}
	})

	if len(m.submitted) != 0 {
		t.Errorf("submitted = %v", m.submitted)
	}
}

func TestLeadTimeGuidedFlow(t *testing.T) {
	t.Parallel()
	ctrl, c, m := newController(t)
	spec := mustForm(t, c, "lead_time")
	slots := types.Slots{}

	resp := invoke(t, ctrl, spec, &types.Turn{LastIntent: "LT_boton_inicio", Text: "/LT_boton_inicio", Slots: slots})
	slots = apply(slots, resp.Events)
	if slots.String("LT_boton_inicio") != "LT_boton_inicio" {
		t.Fatalf("start slot = %q", slots.String("LT_boton_inicio"))
	}
	if slots.String(types.RequestedSlot) != "LT_vistas_gen" {
		t.Fatalf("requested_slot = %q", slots.String(types.RequestedSlot))
	}

	resp = invoke(t, ctrl, spec, &types.Turn{LastIntent: "LT_vista1", Text: "/LT_vista1", Slots: slots})
	slots = apply(slots, resp.Events)
	if slots.String(types.RequestedSlot) != "LT_vista1_exp" {
		t.Fatalf("requested_slot = %q", slots.String(types.RequestedSlot))
	}

	t.Run("free text interrupts the tour", func(t *testing.T) {
		resp := invoke(t, ctrl, spec, &types.Turn{LastIntent: "saludo", Text: "hola", Slots: slots})
		if ask := resp.Events[len(resp.Events)-1]; ask.Kind != types.EventAsk || ask.Slot != "LT_interrupcion" {
			t.Fatalf("ask = %+v", ask)
		}
		if updates := resp.Events.SlotUpdates(); updates["LT_vista1_exp"] != nil {
			t.Error("free text filled a tour slot")
		}
	})

	t.Run("filled re-askable slot is cleared and asked again", func(t *testing.T) {
		filled := apply(slots, types.Events{types.SetSlot("LT_vistas_gen", types.Value("LT_vistas_gen"))})
		resp := invoke(t, ctrl, spec, &types.Turn{LastIntent: "LT_boton_inicio", Text: "/LT_boton_inicio", Slots: filled})
		want := types.Events{
			types.SetSlot("LT_boton_inicio", types.Value("LT_boton_inicio")),
			types.ClearSlot("LT_vistas_gen"),
			types.SetSlot(types.RequestedSlot, types.Value("LT_vistas_gen")),
		}
		if diff := cmp.Diff(want, resp.Events[:3]); diff != "" {
			t.Fatalf("events (-want +got):\n%s", diff)
		}
	})

	resp = invoke(t, ctrl, spec, &types.Turn{LastIntent: "LT_boton_fin", Text: "/LT_boton_fin", Slots: slots})
	if resp.Phase != types.PhaseSubmitted {
		t.Fatalf("phase = %s", resp.Phase)
	}
	action, _ := resp.Events.Followup()
	if action != "action_delete_slot_caso_de_uso_LT" {
		t.Errorf("followup = %q", action)
	}
	if texts := resp.Events.Texts(); len(texts) != 1 || texts[0] != spec.Messages.Submitted {
		t.Errorf("texts = %v", texts)
	}
	if diff := cmp.Diff([]string{"lead_time"}, m.submitted); diff != "" {
		t.Errorf("submitted (-want +got):\n%s", diff)
	}
}

func TestLeadTimeSilentExit(t *testing.T) {
	t.Parallel()
	ctrl, c, _ := newController(t)
	spec := mustForm(t, c, "lead_time")
	resp := invoke(t, ctrl, spec, &types.Turn{Text: "start!.,", Slots: types.Slots{"LT_boton_inicio": types.Value("LT_boton_inicio")}})
	if resp.Phase != types.PhaseCancelled {
		t.Fatalf("phase = %s", resp.Phase)
	}
	if renders(resp.Events) != 0 {
		t.Errorf("silent exit rendered %v", resp.Events.Texts())
	}
}

func TestManagerErrorsDoNotChangeTheTurn(t *testing.T) {
	t.Parallel()
	c, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	ctrl := agent.NewLocalController(c, agent.WithFormManager(&recordingManager{err: errors.New("boom")}))
	spec := mustForm(t, c, "busquedas")
	resp := invoke(t, ctrl, spec, &types.Turn{Text: form.ConfirmPayload, Slots: fullBusquedas()})
	if resp.Phase != types.PhaseSubmitted {
		t.Fatalf("phase = %s", resp.Phase)
	}
}

func TestInvokeWithoutForm(t *testing.T) {
	t.Parallel()
	ctrl, _, _ := newController(t)
	resp, err := ctrl.Invoke(context.Background(), &agent.Request{Turn: &types.Turn{Text: "hola"}})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if resp.Metadata["error"] == "" || len(resp.Events.Texts()) != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestBackCommand(t *testing.T) {
	t.Parallel()
	ctrl, c, _ := newController(t)
	spec := mustForm(t, c, "busquedas")

	t.Run("from the summary", func(t *testing.T) {
		resp := invoke(t, ctrl, spec, &types.Turn{Text: "volver", Slots: fullBusquedas()})
		if resp.Phase != types.PhaseCollecting {
			t.Fatalf("phase = %s", resp.Phase)
		}
		want := types.Events{
			types.ClearSlot("date_filter"),
			types.SetSlot(types.RequestedSlot, types.Value("date_filter")),
		}
		if diff := cmp.Diff(want, resp.Events[:2]); diff != "" {
			t.Fatalf("events (-want +got):\n%s", diff)
		}
		if ask := resp.Events[len(resp.Events)-1]; ask.Kind != types.EventAsk || ask.Slot != "date_filter" {
			t.Fatalf("ask = %+v", ask)
		}
		if slots := apply(fullBusquedas(), resp.Events); slots.Has("date_filter") || !slots.Has("anno_b") {
			t.Errorf("slots = %v", slots.Plain())
		}
	})

	t.Run("while collecting", func(t *testing.T) {
		slots := types.Slots{
			"tipo_consulta":     types.Value("Ranking de mercados de origen por ventana media"),
			"destino_b":         types.Value("Valencia"),
			"origen_pais_b":     types.Value("Todos"),
			"origen_ciudad_b":   types.Value("Todas"),
			types.RequestedSlot: types.Value("anno_b"),
			types.ActiveForm:    types.Value("busquedas"),
		}
		resp := invoke(t, ctrl, spec, &types.Turn{Text: "Volver", Slots: slots})
		slots = apply(slots, resp.Events)
		if slots.Has("destino_b") || slots.String(types.RequestedSlot) != "destino_b" {
			t.Fatalf("slots = %v", slots.Plain())
		}
		if !slots.Has("origen_pais_b") {
			t.Error("autofilled market cleared")
		}
	})

	t.Run("nothing answered repeats the question", func(t *testing.T) {
		slots := types.Slots{types.RequestedSlot: types.Value("tipo_consulta"), types.ActiveForm: types.Value("busquedas")}
		resp := invoke(t, ctrl, spec, &types.Turn{Text: "volver", Slots: slots})
		if renders(resp.Events) != 1 {
			t.Fatalf("events = %+v", resp.Events)
		}
		if ask := resp.Events[len(resp.Events)-1]; ask.Slot != "tipo_consulta" || ask.Text == form.DefaultInvalidMessage {
			t.Errorf("ask = %+v", ask)
		}
	})
}

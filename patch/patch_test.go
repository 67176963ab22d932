package patch

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tbxark/talkform/types"
)

func TestFromEventsAndApply(t *testing.T) {
	t.Parallel()
	current := types.Slots{
		"tipo_consulta": types.Value("Ranking de mercados de origen por ventana media"),
		"destino_b":     types.Value("Valencia"),
		"stale":         nil,
	}
	events := []types.Event{
		types.SetSlot("origen_pais_b", types.Value("Todos")),
		types.SetSlot("destino_b", types.Value("Alicante")),
		types.ClearSlot("tipo_consulta"),
		types.ClearSlot("never_set"),
		types.Message("ignored"),
		types.SetSlot("a/b~c", types.Value("escaped")),
	}

	ops := FromEvents(events)
	if len(ops) != 5 {
		t.Fatalf("ops = %+v", ops)
	}
	if ops[4].Path != "/a~1b~0c" {
		t.Errorf("escaped path = %q", ops[4].Path)
	}

	got, err := ApplyRFC6902(current, ops)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	want := types.Slots{
		"origen_pais_b": types.Value("Todos"),
		"destino_b":     types.Value("Alicante"),
		"a/b~c":         types.Value("escaped"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("slots (-want +got):\n%s", diff)
	}
	if v, _ := current.Get("destino_b"); v != "Valencia" {
		t.Error("current snapshot was modified")
	}
}

func TestApplyNoOps(t *testing.T) {
	t.Parallel()
	got, err := ApplyRFC6902(types.Slots{"a": types.Value("1"), "b": nil}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(types.Slots{"a": types.Value("1")}, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestFixOperation(t *testing.T) {
	t.Parallel()
	ops := FixOperation(map[string]string{"a": "1"}, []Operation{
		{Op: OperationReplace, Path: "/b", Value: "2"},
		{Op: OperationReplace, Path: "/b", Value: "3"},
		{Op: OperationRemove, Path: "/c"},
		{Op: OperationRemove, Path: "/a"},
		{Op: OperationRemove, Path: "/a"},
	})
	want := []Operation{
		{Op: OperationAdd, Path: "/b", Value: "2"},
		{Op: OperationReplace, Path: "/b", Value: "3"},
		{Op: OperationRemove, Path: "/a"},
	}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestValidatePatchOperations(t *testing.T) {
	t.Parallel()
	allowed := AllowedPaths("destino_b", types.RequestedSlot)
	ok := []Operation{{Op: OperationAdd, Path: "/destino_b"}, {Op: OperationRemove, Path: "/requested_slot"}}
	if err := ValidatePatchOperations(ok, allowed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := [][]Operation{
		{{Op: OperationAdd, Path: "/scope"}},
		{{Op: OperationAdd, Path: "/destino_b/x"}},
		{{Op: OperationAdd, Path: "destino_b"}},
		{{Op: OperationAdd, Path: "/"}},
	}
	for _, ops := range bad {
		if err := ValidatePatchOperations(ops, allowed); err == nil {
			t.Errorf("ops %+v accepted", ops)
		}
	}
	if err := ValidatePatchOperations([]Operation{{Op: OperationAdd, Path: "/scope"}}, map[string]bool{AnySlot: true}); err != nil {
		t.Errorf("wildcard: %v", err)
	}
}

func TestGeneratePatchesFromInitial(t *testing.T) {
	t.Parallel()
	current := types.Slots{"a": types.Value("1"), "b": types.Value("2"), "c": types.Value("3")}
	initial := types.Slots{"a": types.Value("1"), "b": types.Value("20"), "c": nil, "d": types.Value("4"), "e": types.Value("")}
	ops := GeneratePatchesFromInitial(current, initial)
	want := []Operation{
		{Op: OperationReplace, Path: "/b", Value: "20"},
		{Op: OperationRemove, Path: "/c"},
		{Op: OperationAdd, Path: "/d", Value: "4"},
	}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	got, err := ApplyRFC6902(current, ops)
	if err != nil {
		t.Fatal(err)
	}
	if got.String("b") != "20" || got.Has("c") || got.String("d") != "4" {
		t.Errorf("applied = %v", got.Plain())
	}
}

package patch

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/tbxark/talkform/types"
)

// ApplyRFC6902 applies ops to a copy of current. Unset slots disappear from the result.
func ApplyRFC6902(current types.Slots, ops []Operation) (types.Slots, error) {
	doc := compact(current)
	if len(ops) == 0 {
		return fromMap(doc), nil
	}

	currentJSON, err := sonic.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal current slots: %w", err)
	}

	ops = FixOperation(doc, ops)
	if len(ops) == 0 {
		return fromMap(doc), nil
	}
	patchJSON, err := sonic.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch operations: %w", err)
	}

	patch, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode patch: %w", err)
	}

	modifiedJSON, err := patch.Apply(currentJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to apply patch: %w", err)
	}

	var values map[string]string
	if err := sonic.Unmarshal(modifiedJSON, &values); err != nil {
		return nil, fmt.Errorf("patch would leave a non string slot: %w", err)
	}
	return fromMap(values), nil
}

func fromMap(values map[string]string) types.Slots {
	out := make(types.Slots, len(values))
	for k, v := range values {
		out[k] = types.Value(v)
	}
	return out
}

// FixOperation turns replaces of absent slots into adds and drops removes of absent slots.
func FixOperation(doc map[string]string, ops []Operation) []Operation {
	present := make(map[string]bool, len(doc))
	for k := range doc {
		present[k] = true
	}
	fixed := make([]Operation, 0, len(ops))
	for _, op := range ops {
		slot := slotOf(op.Path)
		switch op.Op {
		case OperationReplace:
			if !present[slot] {
				op.Op = OperationAdd
			}
			present[slot] = true
			fixed = append(fixed, op)
		case OperationAdd:
			present[slot] = true
			fixed = append(fixed, op)
		case OperationRemove:
			if present[slot] {
				fixed = append(fixed, op)
				delete(present, slot)
			}
		default:
			fixed = append(fixed, op)
		}
	}
	return fixed
}

func compact(slots types.Slots) map[string]string {
	out := make(map[string]string, len(slots))
	for k := range slots {
		if v, ok := slots.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

func slotOf(path string) string {
	return unescapeJSONPointer(strings.TrimPrefix(path, "/"))
}

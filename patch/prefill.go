package patch

import (
	"slices"

	"github.com/tbxark/talkform/types"
)

// GeneratePatchesFromInitial returns the operations that bring current in line with the
// values set in initial. Slots initial leaves unset are kept; explicit nils clear.
func GeneratePatchesFromInitial(current, initial types.Slots) []Operation {
	keys := make([]string, 0, len(initial))
	for k := range initial {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var ops []Operation
	for _, k := range keys {
		v := initial[k]
		if v == nil {
			if current.Has(k) {
				ops = append(ops, Operation{Op: OperationRemove, Path: SlotPath(k)})
			}
			continue
		}
		if *v == "" {
			continue
		}
		cur, ok := current.Get(k)
		switch {
		case !ok:
			ops = append(ops, Operation{Op: OperationAdd, Path: SlotPath(k), Value: *v})
		case cur != *v:
			ops = append(ops, Operation{Op: OperationReplace, Path: SlotPath(k), Value: *v})
		}
	}
	return ops
}

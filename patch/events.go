package patch

import "github.com/tbxark/talkform/types"

// FromEvents converts the set_slot events of a step into patch operations, in event order.
// A set_slot without value becomes a remove.
func FromEvents(events []types.Event) []Operation {
	var ops []Operation
	for _, e := range events {
		if e.Kind != types.EventSetSlot || e.Slot == "" {
			continue
		}
		if e.Value == nil || *e.Value == "" {
			ops = append(ops, Operation{Op: OperationRemove, Path: SlotPath(e.Slot)})
			continue
		}
		ops = append(ops, Operation{Op: OperationReplace, Path: SlotPath(e.Slot), Value: *e.Value})
	}
	return ops
}

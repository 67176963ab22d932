package patch

import (
	"fmt"
	"strings"
)

// AnySlot in an allowed set admits every top level slot path.
const AnySlot = "/*"

// ValidatePatchOperations checks every operation targets a single allowed slot.
// An empty allowed set admits any slot.
func ValidatePatchOperations(ops []Operation, allowedPaths map[string]bool) error {
	for i, op := range ops {
		if err := validatePathAllowed(op.Path, allowedPaths); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}
	return nil
}

func validatePathAllowed(path string, allowedPaths map[string]bool) error {
	if !strings.HasPrefix(path, "/") || strings.Count(path, "/") != 1 || len(path) == 1 {
		return fmt.Errorf("path %q does not name a slot", path)
	}
	if len(allowedPaths) == 0 || allowedPaths[AnySlot] || allowedPaths[path] {
		return nil
	}
	return fmt.Errorf("path %q is not in the allowed paths set", path)
}

// AllowedPaths builds the allowed set for a list of slot names.
func AllowedPaths(slots ...string) map[string]bool {
	out := make(map[string]bool, len(slots))
	for _, s := range slots {
		out[SlotPath(s)] = true
	}
	return out
}

package types

type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseConfirming Phase = "confirming"
	PhaseSubmitted  Phase = "submitted"
	PhaseCancelled  Phase = "cancelled"
	PhaseRedirected Phase = "redirected"
)

// Terminal reports whether the form has left the slot-filling loop.
func (p Phase) Terminal() bool {
	return p == PhaseSubmitted || p == PhaseCancelled || p == PhaseRedirected
}

// Reserved slot names shared by every form.
const (
	RequestedSlot = "requested_slot"
	ActiveForm    = "active_form"
	ScopeSlot     = "scope"
	UserNameSlot  = "user_name"
)

type FieldInfo struct {
	Slot        string `json:"slot"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

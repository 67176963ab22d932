package types

type EventKind string

const (
	EventSetSlot  EventKind = "set_slot"
	EventAsk      EventKind = "ask"
	EventMessage  EventKind = "message"
	EventConfirm  EventKind = "confirm"
	EventFollowup EventKind = "followup"
)

type Button struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// Event is one output directive of a turn. Set-slot events with a nil Value clear the slot.
type Event struct {
	Kind    EventKind `json:"kind"`
	Slot    string    `json:"slot,omitempty"`
	Value   *string   `json:"value,omitempty"`
	Text    string    `json:"text,omitempty"`
	Buttons []Button  `json:"buttons,omitempty"`
	Action  string    `json:"action,omitempty"`
}

func SetSlot(name string, value *string) Event {
	return Event{Kind: EventSetSlot, Slot: name, Value: value}
}

func ClearSlot(name string) Event {
	return Event{Kind: EventSetSlot, Slot: name}
}

func Ask(slot, text string, buttons []Button) Event {
	return Event{Kind: EventAsk, Slot: slot, Text: text, Buttons: buttons}
}

func Message(text string) Event {
	return Event{Kind: EventMessage, Text: text}
}

func Confirm(text string, buttons []Button) Event {
	return Event{Kind: EventConfirm, Text: text, Buttons: buttons}
}

func Followup(action string) Event {
	return Event{Kind: EventFollowup, Action: action}
}

// Renders reports whether the event produces visible output.
func (e Event) Renders() bool {
	return e.Kind == EventAsk || e.Kind == EventMessage || e.Kind == EventConfirm
}

type Events []Event

// Followup returns the followup action of the event list, if any.
func (es Events) Followup() (string, bool) {
	for _, e := range es {
		if e.Kind == EventFollowup {
			return e.Action, true
		}
	}
	return "", false
}

// SlotUpdates collects set_slot events in order, later events winning.
func (es Events) SlotUpdates() map[string]*string {
	out := make(map[string]*string)
	for _, e := range es {
		if e.Kind == EventSetSlot {
			out[e.Slot] = e.Value
		}
	}
	return out
}

// Texts returns the text of every rendering event.
func (es Events) Texts() []string {
	var out []string
	for _, e := range es {
		if e.Renders() && e.Text != "" {
			out = append(out, e.Text)
		}
	}
	return out
}

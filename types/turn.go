package types

// Turn is the input of one dialogue step. An empty LastIntent means no intent was observed.
type Turn struct {
	SenderID   string `json:"sender_id,omitempty"`
	Form       string `json:"form,omitempty"`
	LastIntent string `json:"last_intent,omitempty"`
	Text       string `json:"text"`
	Slots      Slots  `json:"slots,omitempty"`
	// Entities are the values the language understanding step extracted, such as "name".
	Entities map[string]string `json:"entities,omitempty"`
}

type TurnResult struct {
	TurnID string `json:"turn_id"`
	Form   string `json:"form,omitempty"`
	Phase  Phase  `json:"phase,omitempty"`
	Events Events `json:"events"`
	Slots  Slots  `json:"slots"`
}

package domain

// Event is one row of the store change log. The realtime stream derives its
// opaque change notifications from these rows.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entityKind"`
	EntityID   string `json:"entityId,omitempty"`
	Actor      string `json:"actor,omitempty"`
	Payload    string `json:"payload"`
}

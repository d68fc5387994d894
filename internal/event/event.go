package event

type Type string

const (
	TypeUserRegistered     Type = "user.registered"
	TypeCalculationCreated Type = "calculation.created"
	TypeCalculationUpdated Type = "calculation.updated"
	TypeCalculationDeleted Type = "calculation.deleted"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
	ActorID   string `json:"actor_id,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func())
}

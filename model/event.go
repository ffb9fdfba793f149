package model

// Event names pushed to observers.
const (
	EventStatus  = "status"
	EventHistory = "history"
	EventLog     = "log"
	EventSpecs   = "specs"
)

// Event is a named payload delivered to every connected observer.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// SpecsPayload is the payload of the specs event.
type SpecsPayload struct {
	Specs []string `json:"specs"`
}

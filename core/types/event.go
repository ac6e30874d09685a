package types

// Event is the flattened, string-keyed form of an emitted event that log and
// report consumers index on.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

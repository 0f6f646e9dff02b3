package models

// Request is an inbound orchestration request. ID is assigned by the caller
// or generated at entry; it is unique within a process lifetime for tracing.
// The wire field for Kind is "type" to match the client contract.
type Request struct {
	ID      string         `json:"id,omitempty"`
	Kind    string         `json:"type,omitempty"`
	Content string         `json:"content"`
	Context map[string]any `json:"context,omitempty"`
}

// MemoryHit is one result from a semantic similarity search.
type MemoryHit struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score,omitempty"`
}

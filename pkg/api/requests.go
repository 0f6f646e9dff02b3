package api

// ExecuteRequest is the body of POST /api/actions/execute.
type ExecuteRequest struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	Content string         `json:"content"`
	Context map[string]any `json:"context"`
}

// MemorySearchRequest is the body of POST /api/memory/search.
type MemorySearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// MemoryStoreRequest is the body of POST /api/memory/store.
type MemoryStoreRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

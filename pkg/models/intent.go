package models

// Intent is a structured request handed to the planner. For composite
// runs an intent is built per subtask, with dependency outputs resolved
// and metadata stamped by the orchestration service.
type Intent struct {
	// ID is the unique identifier for this intent.
	ID string `json:"id"`
	// Request is the raw request text the intent was derived from.
	Request string `json:"request"`
	// Type is the intent category (e.g. "action", "query").
	Type string `json:"type,omitempty"`
	// Domain is the coarse domain (e.g. "file", "general").
	Domain string `json:"domain,omitempty"`
	// Params are resolved input parameters.
	Params map[string]any `json:"params,omitempty"`
	// Metadata carries session and subtask stamps.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MetadataString returns the named metadata value if it is a string.
func (i *Intent) MetadataString(key string) string {
	if i == nil || i.Metadata == nil {
		return ""
	}
	if v, ok := i.Metadata[key].(string); ok {
		return v
	}
	return ""
}

package models

// ValidationResult is the outcome of a plan parameter validation pass.
type ValidationResult struct {
	Success       bool     `json:"success"`
	MissingParams []string `json:"missing_params,omitempty"`
	Error         string   `json:"error,omitempty"`
}

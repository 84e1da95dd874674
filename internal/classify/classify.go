// Package classify maps raw error signals to structured, user-facing
// classifications. Classification is pure: the same input always
// produces the same ErrorInfo.
package classify

import (
	"strings"
	"unicode/utf8"
)

// ErrorType is the closed error taxonomy. Extend by adding table
// entries, never by computing classifications per instance.
type ErrorType string

const (
	FileNotFound         ErrorType = "file_not_found"
	FilePermissionDenied ErrorType = "file_permission_denied"
	FileAlreadyExists    ErrorType = "file_already_exists"

	SyntaxError      ErrorType = "syntax_error"
	IndentationError ErrorType = "indentation_error"

	ImportError ErrorType = "import_error"
	TypeError   ErrorType = "type_error"
	ValueError  ErrorType = "value_error"

	LLMOutputFormatError    ErrorType = "llm_output_format_error"
	LLMTimeout              ErrorType = "llm_timeout"
	TaskDecompositionFailed ErrorType = "task_decomposition_failed"

	NetworkError ErrorType = "network_error"
	TimeoutError ErrorType = "timeout_error"

	SkillNotFound       ErrorType = "skill_not_found"
	SkillExecutionError ErrorType = "skill_execution_error"

	UnknownError ErrorType = "unknown_error"
)

// Severity grades how bad a classified error is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// ErrorInfo is the classification result handed to callers and UIs.
// RetryPossible is advisory metadata; retries are a controller decision.
type ErrorInfo struct {
	ErrorType        ErrorType `json:"error_type"`
	Severity         Severity  `json:"severity"`
	UserMessage      string    `json:"message"`
	Suggestions      []string  `json:"suggestions"`
	RetryPossible    bool      `json:"retry_possible"`
	TechnicalDetails string    `json:"technical_details,omitempty"`
}

// maxTechnicalDetails bounds the raw text embedded in a classification,
// keeping transport payloads small.
const maxTechnicalDetails = 500

// pattern maps a substring to an error type. Patterns are scanned in
// order; earlier entries win, so the table is a slice, not a map.
type pattern struct {
	substr string
	typ    ErrorType
}

var patterns = []pattern{
	// File errors
	{"no such file or directory", FileNotFound},
	{"filenotfounderror", FileNotFound},
	{"file does not exist", FileNotFound},
	{"permission denied", FilePermissionDenied},
	{"permissionerror", FilePermissionDenied},
	{"file exists", FileAlreadyExists},
	{"fileexistserror", FileAlreadyExists},

	// Syntax errors
	{"syntaxerror", SyntaxError},
	{"syntax error", SyntaxError},
	{"indentationerror", IndentationError},
	{"taberror", IndentationError},

	// Runtime errors
	{"modulenotfounderror", ImportError},
	{"importerror", ImportError},
	{"typeerror", TypeError},
	{"valueerror", ValueError},

	// Decomposition and skill errors before the generic buckets so the
	// specific classification wins.
	{"decomposition timed out", TaskDecompositionFailed},
	{"decomposition failed", TaskDecompositionFailed},
	{"skill not found", SkillNotFound},
	{"unknown skill", SkillNotFound},
	{"skill execution failed", SkillExecutionError},

	// LLM errors
	{"llm request timed out", LLMTimeout},
	{"llm timeout", LLMTimeout},
	{"json", LLMOutputFormatError},
	{"parse", LLMOutputFormatError},
	{"timeout", TimeoutError},
	{"timed out", TimeoutError},

	// Network errors
	{"connection", NetworkError},
	{"network", NetworkError},
}

// template is the fixed severity/suggestions/retry triple for one taxon.
type template struct {
	message       string
	suggestions   []string
	severity      Severity
	retryPossible bool
}

var templates = map[ErrorType]template{
	FileNotFound: {
		message: "The requested file could not be found",
		suggestions: []string{
			"Check that the file path is correct",
			"Confirm the file name casing matches",
			"Create the file first if it does not exist",
		},
		severity:      SeverityError,
		retryPossible: true,
	},
	FilePermissionDenied: {
		message: "Permission to access the file was denied",
		suggestions: []string{
			"Check the file's permission bits",
			"Run with sufficient privileges",
			"Make sure no other process holds the file",
		},
		severity:      SeverityCritical,
		retryPossible: false,
	},
	FileAlreadyExists: {
		message: "The file already exists",
		suggestions: []string{
			"Delete the existing file before overwriting",
			"Or choose a different file name",
		},
		severity:      SeverityWarning,
		retryPossible: true,
	},
	SyntaxError: {
		message: "Generated code has a syntax error",
		suggestions: []string{
			"Check that brackets and quotes are balanced",
			"Try rephrasing the request",
		},
		severity:      SeverityError,
		retryPossible: true,
	},
	IndentationError: {
		message: "Generated code has inconsistent indentation",
		suggestions: []string{
			"Use consistent indentation throughout",
			"Ask for the code to be regenerated",
		},
		severity:      SeverityError,
		retryPossible: true,
	},
	ImportError: {
		message: "A required module is missing",
		suggestions: []string{
			"Install the missing module first",
			"Or accomplish the goal another way",
		},
		severity:      SeverityError,
		retryPossible: false,
	},
	TypeError: {
		message: "A value had an unexpected type",
		suggestions: []string{
			"Check the types of the input data",
			"Try rephrasing the request",
		},
		severity:      SeverityError,
		retryPossible: true,
	},
	ValueError: {
		message: "A value was out of range or malformed",
		suggestions: []string{
			"Check the input values",
			"Confirm the data format matches what is expected",
		},
		severity:      SeverityError,
		retryPossible: true,
	},
	LLMOutputFormatError: {
		message: "The request was understood but the generated plan was malformed",
		suggestions: []string{
			"Try rephrasing the request",
			"Break the task into simpler steps",
			"Switch to a stronger model if the problem persists",
		},
		severity:      SeverityError,
		retryPossible: true,
	},
	LLMTimeout: {
		message: "The model took too long to respond",
		suggestions: []string{
			"Check the network connection",
			"Simplify the request",
			"Try again later",
		},
		severity:      SeverityError,
		retryPossible: true,
	},
	TaskDecompositionFailed: {
		message: "The request could not be broken into subtasks",
		suggestions: []string{
			"The request may be too complex; ask for the pieces one at a time",
			"Simplify the description and drop unnecessary detail",
			"Retry shortly if the task is urgent",
		},
		severity:      SeverityError,
		retryPossible: true,
	},
	NetworkError: {
		message: "A network connection failed",
		suggestions: []string{
			"Check the network connection",
			"Confirm the remote service is up",
			"Try again later",
		},
		severity:      SeverityCritical,
		retryPossible: true,
	},
	TimeoutError: {
		message: "The operation timed out",
		suggestions: []string{
			"Check the network connection",
			"Try again later",
		},
		severity:      SeverityError,
		retryPossible: true,
	},
	SkillNotFound: {
		message: "No capability is available for this task",
		suggestions: []string{
			"The capability may not be implemented yet",
			"Describe the goal a different way",
		},
		severity:      SeverityError,
		retryPossible: true,
	},
	SkillExecutionError: {
		message: "A capability failed while executing",
		suggestions: []string{
			"Check the capability's inputs",
			"Retry the task",
		},
		severity:      SeverityError,
		retryPossible: true,
	},
	UnknownError: {
		message: "An unexpected error occurred",
		suggestions: []string{
			"Try running the task again",
			"Report the problem if it persists",
		},
		severity:      SeverityError,
		retryPossible: true,
	},
}

// Classify maps an error message and optional exception-kind hint to a
// structured classification. The kind hint is scanned first; if nothing
// matches, the message is scanned case-insensitively; if still nothing
// matches, the unknown template is returned.
func Classify(message, kind string) ErrorInfo {
	if kind != "" {
		lower := strings.ToLower(kind)
		for _, p := range patterns {
			if strings.Contains(lower, p.substr) {
				return Build(p.typ, message)
			}
		}
	}

	lower := strings.ToLower(message)
	for _, p := range patterns {
		if strings.Contains(lower, p.substr) {
			return Build(p.typ, message)
		}
	}

	return Build(UnknownError, message)
}

// Build constructs the ErrorInfo for a known taxon, truncating the raw
// details to the transport bound.
func Build(typ ErrorType, technicalDetails string) ErrorInfo {
	tpl, ok := templates[typ]
	if !ok {
		tpl = templates[UnknownError]
		typ = UnknownError
	}
	technicalDetails = truncate(technicalDetails, maxTechnicalDetails)
	return ErrorInfo{
		ErrorType:        typ,
		Severity:         tpl.severity,
		UserMessage:      tpl.message,
		Suggestions:      tpl.suggestions,
		RetryPossible:    tpl.retryPossible,
		TechnicalDetails: technicalDetails,
	}
}

// truncate bounds s to at most max bytes, backing the cut up so a
// multibyte rune is never split.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

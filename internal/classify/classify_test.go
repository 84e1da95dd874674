package classify

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClassifyByMessage(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    ErrorType
	}{
		{"file not found", "open /tmp/x: no such file or directory", FileNotFound},
		{"permission denied", "open /etc/shadow: permission denied", FilePermissionDenied},
		{"file exists", "mkdir /tmp/y: file exists", FileAlreadyExists},
		{"case insensitive", "OPEN FAILED: No Such File Or Directory", FileNotFound},
		{"json format", "failed to unmarshal JSON response", LLMOutputFormatError},
		{"timeout", "request timed out after 30s", TimeoutError},
		{"network", "connection refused", NetworkError},
		{"decomposition", "decomposition timed out waiting for model", TaskDecompositionFailed},
		{"skill missing", "unknown skill text.summarize", SkillNotFound},
		{"unknown", "something inexplicable happened", UnknownError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Classify(tt.message, "")
			if info.ErrorType != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.message, info.ErrorType, tt.want)
			}
		})
	}
}

func TestClassifyKindHintTakesPriority(t *testing.T) {
	// The message alone would classify as network; the kind hint wins.
	info := Classify("connection reset while reading module", "ImportError")
	if info.ErrorType != ImportError {
		t.Errorf("kind hint ignored: got %s, want %s", info.ErrorType, ImportError)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	msg := "open config: permission denied while parsing JSON timeout"
	first := Classify(msg, "")
	for i := 0; i < 50; i++ {
		again := Classify(msg, "")
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("classification not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestClassifyTemplateFieldsAreFixed(t *testing.T) {
	a := Classify("no such file or directory: a.txt", "")
	b := Classify("no such file or directory: b.txt", "")

	if a.Severity != b.Severity || a.UserMessage != b.UserMessage ||
		a.RetryPossible != b.RetryPossible ||
		!reflect.DeepEqual(a.Suggestions, b.Suggestions) {
		t.Error("template fields must be looked up, not computed per instance")
	}
	if a.Severity != SeverityError || !a.RetryPossible {
		t.Errorf("file_not_found template wrong: %+v", a)
	}
}

func TestClassifyTruncatesTechnicalDetails(t *testing.T) {
	long := strings.Repeat("x", 2000)
	info := Classify(long, "")
	if len(info.TechnicalDetails) != 500 {
		t.Errorf("technical details length = %d, want 500", len(info.TechnicalDetails))
	}
}

func TestClassifyTruncationKeepsValidUTF8(t *testing.T) {
	// 499 ASCII bytes, then a 3-byte rune straddling the 500-byte bound.
	long := strings.Repeat("x", 499) + strings.Repeat("世", 100)
	info := Classify(long, "")
	if !utf8.ValidString(info.TechnicalDetails) {
		t.Error("technical details contain a split rune")
	}
	if len(info.TechnicalDetails) != 499 {
		t.Errorf("technical details length = %d, want 499", len(info.TechnicalDetails))
	}
}

func TestBuildUnknownTypeFallsBack(t *testing.T) {
	info := Build(ErrorType("no_such_taxon"), "details")
	if info.ErrorType != UnknownError {
		t.Errorf("unexpected type %s", info.ErrorType)
	}
}

func TestPermissionDeniedNotRetryable(t *testing.T) {
	info := Classify("permission denied", "")
	if info.RetryPossible {
		t.Error("permission denied must not be flagged retryable")
	}
	if info.Severity != SeverityCritical {
		t.Errorf("severity = %s, want critical", info.Severity)
	}
}

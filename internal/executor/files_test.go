package executor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sethgrantham/baton/pkg/models"
)

func TestFindContent(t *testing.T) {
	long := strings.Repeat("report body ", 10)

	tests := []struct {
		name    string
		outputs map[string]any
		want    string
	}{
		{
			name:    "content field wins",
			outputs: map[string]any{"content": long, "s1": "other value here"},
			want:    long,
		},
		{
			name:    "output suffixed key",
			outputs: map[string]any{"subtask_a_output": long},
			want:    long,
		},
		{
			name:    "step id key without content mirror",
			outputs: map[string]any{"s1": long},
			want:    long,
		},
		{
			name:    "longest string value preferred",
			outputs: map[string]any{"s1": "short but real", "s2": long},
			want:    long,
		},
		{
			name:    "trivial fragments ignored",
			outputs: map[string]any{"s1": "tiny", "count": 42},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findContent(tt.outputs); got != tt.want {
				t.Errorf("findContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnsureExpectedFiles_MaterializesFromStepOutput(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "summary.md")

	e := &Executor{logger: NopLogger()}
	subtask := &models.SubTask{ID: "a", ExpectedOutputs: []string{target}}
	content := strings.Repeat("generated summary ", 5)

	e.ensureExpectedFiles(subtask, map[string]any{"s1": content})

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("expected file written: %v", err)
	}
	if string(data) != content {
		t.Errorf("file content = %q, want %q", data, content)
	}
}

func TestEnsureExpectedFiles_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(target, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	e := &Executor{logger: NopLogger()}
	subtask := &models.SubTask{ID: "a", ExpectedOutputs: []string{target}}

	e.ensureExpectedFiles(subtask, map[string]any{"content": "replacement content"})

	data, _ := os.ReadFile(target)
	if string(data) != "original" {
		t.Errorf("existing file overwritten: %q", data)
	}
}

package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sethgrantham/baton/internal/taskctx"
)

// DefaultRegistry returns a registry with the builtin skills loaded.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range []Skill{&EchoSkill{}, &TextTransformSkill{}, &FileWriteSkill{}} {
		// Builtins have unique names; Register cannot fail here.
		r.Register(s)
	}
	return r
}

// EchoSkill returns its "message" param, resolving task variables.
type EchoSkill struct{}

func (EchoSkill) Name() string      { return "echo" }
func (EchoSkill) Aliases() []string { return []string{"say", "print"} }

func (EchoSkill) Execute(_ context.Context, params map[string]any, tc *taskctx.TaskContext) (any, error) {
	msg, _ := params["message"].(string)
	if msg == "" {
		return nil, fmt.Errorf("echo: missing message param")
	}
	if tc != nil {
		if ref, ok := params["var"].(string); ok {
			if v := tc.Get(ref); v != nil {
				msg = fmt.Sprintf("%s %v", msg, v)
			}
		}
	}
	return msg, nil
}

// TextTransformSkill applies a named transformation to its input text.
type TextTransformSkill struct{}

func (TextTransformSkill) Name() string      { return "text_transform" }
func (TextTransformSkill) Aliases() []string { return []string{"transform"} }

func (TextTransformSkill) Execute(_ context.Context, params map[string]any, _ *taskctx.TaskContext) (any, error) {
	text, _ := params["text"].(string)
	op, _ := params["op"].(string)

	switch op {
	case "upper":
		return strings.ToUpper(text), nil
	case "lower":
		return strings.ToLower(text), nil
	case "trim":
		return strings.TrimSpace(text), nil
	default:
		return nil, fmt.Errorf("text_transform: unknown op %q", op)
	}
}

// FileWriteSkill writes content to a path, creating parent directories.
// It refuses to overwrite an existing nonempty file unless the
// "overwrite" param is set.
type FileWriteSkill struct{}

func (FileWriteSkill) Name() string      { return "file_write" }
func (FileWriteSkill) Aliases() []string { return []string{"write_file", "save_file"} }

func (FileWriteSkill) Execute(_ context.Context, params map[string]any, tc *taskctx.TaskContext) (any, error) {
	path, _ := params["path"].(string)
	content, _ := params["content"].(string)
	if path == "" {
		return nil, fmt.Errorf("file_write: missing path param")
	}

	overwrite, _ := params["overwrite"].(bool)
	if !overwrite {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return nil, fmt.Errorf("file_write: refusing to overwrite nonempty file %s", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("file_write: create parent dirs: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("file_write: %w", err)
	}

	if tc != nil {
		tc.AddArtifact("file", path, map[string]any{"bytes": len(content)})
	}
	return path, nil
}

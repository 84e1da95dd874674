package executor

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sethgrantham/baton/pkg/models"
)

// textExtensions are the file types expected outputs may be
// materialized as.
var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".csv":  true,
	".html": true,
	".xml":  true,
	".log":  true,
}

// minMaterializeContent guards against writing trivial fragments.
const minMaterializeContent = 10

// ensureExpectedFiles is the best-effort fallback for capabilities that
// produce content but omit the write step: when a subtask declares
// expected outputs with text extensions and a content value is present
// among the collected outputs, write the missing files. An existing
// nonempty file is never overwritten. Write failures are logged and
// skipped.
func (e *Executor) ensureExpectedFiles(subtask *models.SubTask, outputs map[string]any) map[string]any {
	if len(subtask.ExpectedOutputs) == 0 {
		return outputs
	}

	content := findContent(outputs)
	if content == "" {
		return outputs
	}

	for _, name := range subtask.ExpectedOutputs {
		if !textExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		if info, err := os.Stat(name); err == nil && info.Size() > 0 {
			continue
		}

		if dir := filepath.Dir(name); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				e.logger.Log("ensure files: create dir for %s: %v", name, err)
				continue
			}
		}
		if err := os.WriteFile(name, []byte(content), 0644); err != nil {
			e.logger.Log("ensure files: write %s: %v", name, err)
			continue
		}
		e.logger.Log("ensure files: materialized %s (%d bytes)", name, len(content))
		outputs[name] = name
	}
	return outputs
}

// findContent locates a textual content value among collected outputs.
// The collector mirrors the last textual step output under "content"
// and keys the rest by step ID; blackboard-derived maps use an
// "_output" suffix. Check in that order, then fall back to the longest
// remaining string value long enough to be real content.
func findContent(outputs map[string]any) string {
	if s, ok := outputs["content"].(string); ok && len(s) > minMaterializeContent {
		return s
	}
	for k, v := range outputs {
		if !strings.HasSuffix(k, "_output") {
			continue
		}
		if s, ok := v.(string); ok && len(s) > minMaterializeContent {
			return s
		}
	}
	var best string
	var bestKey string
	for k, v := range outputs {
		s, ok := v.(string)
		if !ok || len(s) <= minMaterializeContent {
			continue
		}
		if len(s) > len(best) || (len(s) == len(best) && k < bestKey) {
			best, bestKey = s, k
		}
	}
	return best
}

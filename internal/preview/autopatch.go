package preview

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jgirmay/FORGE_GO/pkg/logging"
)

// PatchSuggester is the external repair collaborator. It receives the
// startup failure text, the suspected file's contents and a shallow
// directory listing, and returns a full replacement for the file or an
// empty string when it declines. Implementations are expected to be
// slow and fallible; the orchestrator treats any error like a decline.
type PatchSuggester interface {
	SuggestPatch(ctx context.Context, errorText, fileName, fileContents, directoryListing string) (string, error)
}

// PatchSuggesterFunc adapts a function to the PatchSuggester interface
type PatchSuggesterFunc func(ctx context.Context, errorText, fileName, fileContents, directoryListing string) (string, error)

// SuggestPatch calls the wrapped function
func (f PatchSuggesterFunc) SuggestPatch(ctx context.Context, errorText, fileName, fileContents, directoryListing string) (string, error) {
	return f(ctx, errorText, fileName, fileContents, directoryListing)
}

// failingFilePattern picks a plausible source filename out of free-form
// error text. It is deliberately a heuristic: a non-match is a
// legitimate outcome, not an error.
var failingFilePattern = regexp.MustCompile(`([\w\-.]+\.(?:jsx|json|js|tsx|ts|py|yml|yaml|toml|cfg|ini|sh|bat|php|html|scss|css|md))(?::\d+)?`)

// extractFailingFile returns the first candidate filename mentioned in
// the error text, or false when none is found.
func extractFailingFile(errorText string) (string, bool) {
	match := failingFilePattern.FindStringSubmatch(errorText)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// directoryListing renders a shallow tree of the project for the patch
// collaborator's context, bounded in depth and files per directory.
func directoryListing(dir string, maxDepth, maxFilesPerDir int) string {
	var sb strings.Builder
	var walk func(path string, depth int)
	walk = func(path string, depth int) {
		if depth > maxDepth {
			return
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		indent := strings.Repeat("  ", depth)
		sb.WriteString(fmt.Sprintf("%s%s/\n", indent, filepath.Base(path)))
		files := 0
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if files >= maxFilesPerDir {
				sb.WriteString(fmt.Sprintf("%s  ... (and more files)\n", indent))
				break
			}
			sb.WriteString(fmt.Sprintf("%s  %s\n", indent, entry.Name()))
			files++
		}
		for _, entry := range entries {
			if entry.IsDir() {
				walk(filepath.Join(path, entry.Name()), depth+1)
			}
		}
	}
	walk(dir, 0)
	return sb.String()
}

// tryAutoPatch runs one bounded repair attempt: extract a candidate
// filename from the failure text, ask the collaborator for a full
// replacement and write it in place. It returns true only when a
// replacement was applied; every other outcome (no suggester, no
// filename, missing file, declined or failed suggestion, write error)
// leaves the project untouched and reports false.
func (r *Registry) tryAutoPatch(ctx context.Context, s *Session, failureText string) bool {
	if r.suggester == nil {
		return false
	}

	log := logging.With(zap.String("session_id", s.ID), zap.String("project_dir", s.ProjectDir))

	fileName, ok := extractFailingFile(failureText)
	if !ok {
		log.Info("auto-patch: no candidate file in failure output")
		return false
	}

	filePath := filepath.Join(s.ProjectDir, fileName)
	contents, err := os.ReadFile(filePath)
	if err != nil {
		log.Info("auto-patch: candidate file not readable", zap.String("file", fileName))
		return false
	}

	// Attempted means the collaborator was actually asked, not merely
	// that the heuristic ran.
	s.PatchAttempted = true
	r.metrics.recordPatchAttempt()
	s.logs.Append(StreamSystem, fmt.Sprintf("requesting auto-patch for %s", fileName))

	listing := directoryListing(s.ProjectDir, 2, 10)
	replacement, err := r.suggester.SuggestPatch(ctx, failureText, fileName, string(contents), listing)
	if err != nil {
		log.Warn("auto-patch: suggestion call failed", zap.Error(err))
		s.logs.Append(StreamSystem, fmt.Sprintf("auto-patch unavailable: %v", err))
		return false
	}
	if strings.TrimSpace(replacement) == "" {
		log.Info("auto-patch: collaborator declined", zap.String("file", fileName))
		s.logs.Append(StreamSystem, "auto-patch declined by collaborator")
		return false
	}

	if err := os.WriteFile(filePath, []byte(replacement), 0o644); err != nil {
		log.Warn("auto-patch: failed to write replacement", zap.String("file", fileName), zap.Error(err))
		s.logs.Append(StreamSystem, fmt.Sprintf("auto-patch write failed: %v", err))
		return false
	}

	log.Info("auto-patch applied", zap.String("file", fileName))
	s.logs.Append(StreamSystem, fmt.Sprintf("auto-patch applied to %s, retrying start", fileName))
	r.recordEvent(s, "patched", fileName)
	return true
}

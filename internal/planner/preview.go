package planner

import (
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// patchPreview renders the first-occurrence substitution of original by fixed
// in content as a unified diff. It returns "" when original is absent.
func patchPreview(path, content, original, fixed string) (string, error) {
	idx := strings.Index(content, original)
	if original == "" || idx < 0 {
		return "", nil
	}

	// Widen the match to whole lines so the hunk is well formed.
	lineStart := strings.LastIndexByte(content[:idx], '\n') + 1
	end := idx + len(original)
	lineEnd := len(content)
	if nl := strings.IndexByte(content[end:], '\n'); nl >= 0 {
		lineEnd = end + nl + 1
	}

	before := content[lineStart:lineEnd]
	after := content[lineStart:idx] + fixed + content[end:lineEnd]
	oldLines := splitLines(before)
	newLines := splitLines(after)

	var body strings.Builder
	for _, l := range oldLines {
		body.WriteString("-" + l + "\n")
	}
	for _, l := range newLines {
		body.WriteString("+" + l + "\n")
	}

	startLine := int32(strings.Count(content[:lineStart], "\n") + 1)
	fd := &diff.FileDiff{
		OrigName: "a/" + path,
		NewName:  "b/" + path,
		Hunks: []*diff.Hunk{{
			OrigStartLine: startLine,
			OrigLines:     int32(len(oldLines)),
			NewStartLine:  startLine,
			NewLines:      int32(len(newLines)),
			Body:          []byte(body.String()),
		}},
	}
	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

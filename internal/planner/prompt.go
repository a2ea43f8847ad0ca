package planner

import (
	"fmt"
	"strings"

	"github.com/rooney011/CodeWeaver/internal/remediation"
)

const systemPrompt = `You are an automated remediation engineer. Given a diagnosis of a failing service, propose ONE remediation.

Respond with ONLY a single JSON object, no prose and no markdown fences:
{
  "action": "run_script" | "apply_code_patch" | "escalate",
  "reason": "why this fixes the problem",
  "script": "Go source, only for run_script",
  "file_path": "path relative to the project root, only for apply_code_patch",
  "original_code": "exact text copied from the source context, only for apply_code_patch",
  "fixed_code": "replacement text, only for apply_code_patch"
}

Rules for run_script:
- Write Go in package main that defines func Remediate() error. Do not define main.
- You may import only fmt, strings, strconv, time, errors, encoding/json and remedy.
- remedy.Post(url string) (int, error) and remedy.Get(url string) (int, string, error) perform bounded HTTP calls; remedy.Logf(format string, args ...any) writes to the operator log.
- No filesystem access and no process execution.

Rules for apply_code_patch:
- original_code must be copied verbatim from the source context, including indentation, and should be as small as possible while still unique.
- Only the first occurrence of original_code is replaced.

Choose escalate when you are not confident a script or patch is safe and correct.`

func userPrompt(d remediation.Diagnosis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Root cause: %s\n", d.RootCause)
	fmt.Fprintf(&b, "Confidence: %.2f\n", d.Confidence)
	fmt.Fprintf(&b, "Primary file: %s\n", d.PrimaryFile)
	fmt.Fprintf(&b, "Line: %s\n", d.LineNumber)
	if len(d.InvolvedFiles) > 0 {
		fmt.Fprintf(&b, "Involved files: %s\n", strings.Join(d.InvolvedFiles, ", "))
	}
	if d.CodeExcerpt != "" {
		fmt.Fprintf(&b, "Failing code: %s\n", d.CodeExcerpt)
	}
	if d.SourceContext != "" {
		fmt.Fprintf(&b, "\nSource context of %s:\n%s\n", d.PrimaryFile, d.SourceContext)
	}
	return b.String()
}

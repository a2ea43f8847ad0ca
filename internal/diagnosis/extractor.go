// Package diagnosis turns recent log text into a structured Diagnosis using
// the Oracle. Extraction never fails: every problem degrades to a
// zero-confidence diagnosis that explains what went wrong.
package diagnosis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rooney011/CodeWeaver/internal/logging"
	"github.com/rooney011/CodeWeaver/internal/metrics"
	"github.com/rooney011/CodeWeaver/internal/oracle"
	"github.com/rooney011/CodeWeaver/internal/projectfs"
	"github.com/rooney011/CodeWeaver/internal/remediation"
)

const (
	// EmptyLogRootCause is reported when there is nothing to analyze.
	EmptyLogRootCause = "no log content provided"

	// Files up to this many lines are attached whole so patches can match exactly.
	fullContextMaxLines = 500
	// Larger files are windowed to this many lines either side of the fault.
	contextWindow = 20
)

// Extractor produces diagnoses from log text.
type Extractor struct {
	oracle oracle.Oracle
	root   *projectfs.Root
}

// NewExtractor creates an Extractor. root may be nil to disable source enrichment.
func NewExtractor(o oracle.Oracle, root *projectfs.Root) *Extractor {
	return &Extractor{oracle: o, root: root}
}

// oracleDiagnosis is the wire shape the Oracle is asked to produce.
type oracleDiagnosis struct {
	RootCause     string    `json:"root_cause"`
	Confidence    flexFloat `json:"confidence"`
	FileName      string    `json:"file_name"`
	InvolvedFiles []string  `json:"involved_files"`
	LineNumber    flexText  `json:"line_number"`
	CodeSnippet   string    `json:"code_snippet"`
}

// Extract returns a Diagnosis for logText. It never returns an error.
func (e *Extractor) Extract(ctx context.Context, logText string) remediation.Diagnosis {
	logger := logging.ForComponent("diagnosis")

	if strings.TrimSpace(logText) == "" {
		metrics.DiagnosesTotal.WithLabelValues("empty").Inc()
		return remediation.FailedDiagnosis(EmptyLogRootCause, logText)
	}

	raw, err := e.oracle.Invoke(ctx, systemPrompt, userPromptPrefix+logText)
	if err != nil {
		logger.Warn().Err(err).Msg("Oracle call failed; returning zero-confidence diagnosis")
		metrics.DiagnosesTotal.WithLabelValues("degraded").Inc()
		return remediation.FailedDiagnosis(fmt.Sprintf("log analysis failed: %v", err), logText)
	}

	var od oracleDiagnosis
	if err := oracle.DecodeObject("diagnosis.parse", raw, &od); err != nil {
		logger.Warn().Err(err).Msg("Unparseable diagnosis from oracle")
		metrics.DiagnosesTotal.WithLabelValues("degraded").Inc()
		return remediation.FailedDiagnosis(fmt.Sprintf("log analysis returned unparseable output: %v", err), logText)
	}

	d := remediation.Diagnosis{
		RootCause:     od.RootCause,
		Confidence:    float64(od.Confidence),
		PrimaryFile:   od.FileName,
		InvolvedFiles: od.InvolvedFiles,
		LineNumber:    string(od.LineNumber),
		CodeExcerpt:   od.CodeSnippet,
		LogExcerpt:    logText,
	}.Normalize()

	if d.HasLocation() {
		d.SourceContext = e.sourceContext(d.PrimaryFile, d.LineNumber)
	}

	logger.Info().
		Str("root_cause", d.RootCause).
		Float64("confidence", d.Confidence).
		Str("file", d.PrimaryFile).
		Str("line", d.LineNumber).
		Bool("source_context", d.SourceContext != "").
		Msg("Diagnosis extracted")
	metrics.DiagnosesTotal.WithLabelValues("diagnosed").Inc()
	return d
}

// sourceContext reads the faulting file. Any problem yields "".
func (e *Extractor) sourceContext(file, line string) string {
	if e.root == nil {
		return ""
	}
	data, err := e.root.ReadFile(file)
	if err != nil {
		logger := logging.ForComponent("diagnosis")
		logger.Debug().Err(err).Str("file", file).Msg("Source context unavailable")
		return ""
	}

	lines := strings.SplitAfter(string(data), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	if len(lines) <= fullContextMaxLines {
		return string(data)
	}

	target, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || target < 1 || target > len(lines) {
		return ""
	}
	start := max(1, target-contextWindow)
	end := min(len(lines), target+contextWindow)
	return strings.Join(lines[start-1:end], "")
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("confidence must be a number: %w", err)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("confidence must be a number: %w", err)
	}
	*f = flexFloat(n)
	return nil
}

// flexText accepts a JSON string or number and keeps it as text.
type flexText string

func (t *flexText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = flexText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("line_number must be text or a number: %w", err)
	}
	*t = flexText(n.String())
	return nil
}

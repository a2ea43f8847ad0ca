package reporting

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rooney011/CodeWeaver/internal/archive"
	"github.com/rooney011/CodeWeaver/internal/remediation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntries() []archive.Entry {
	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	patch := remediation.Plan{
		ID:             "3f1c2a9e-patch",
		Action:         remediation.NewPatchAction("app/main.py", "a", "b"),
		Reason:         "Fix off-by-one",
		Status:         remediation.StatusExecuted,
		SafetyFindings: []string{"patch removes code"},
		DecidedBy:      "alice",
		Diagnosis:      remediation.Diagnosis{RootCause: "IndexError in handler – naïve loop"},
	}
	rejected := remediation.Plan{
		ID:        "77aa-escalate",
		Action:    remediation.NewEscalateAction(),
		Reason:    "Needs a human",
		Status:    remediation.StatusRejected,
		DecidedBy: "bob",
	}
	return []archive.Entry{
		{EventID: "01", Plan: patch, RecordedAt: base.Add(time.Hour), Result: &remediation.ExecutionResult{
			Status: remediation.ResultSuccess, Details: "patched", BackupPath: "/w/app/main.py.bak",
		}},
		{EventID: "02", Plan: rejected, RecordedAt: base},
	}
}

func TestGenerate(t *testing.T) {
	out, err := NewPDFGenerator().Generate(&ReportData{
		GeneratedAt: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
		Entries:     sampleEntries(),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestGenerate_Empty(t *testing.T) {
	out, err := NewPDFGenerator().Generate(&ReportData{})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	_, err = NewPDFGenerator().Generate(nil)
	assert.Error(t, err)
}

func TestPeriodString(t *testing.T) {
	assert.Equal(t, "no decisions recorded", periodString(nil))
	got := periodString(sampleEntries())
	assert.True(t, strings.HasPrefix(got, "Oct 17, 2026 09:00"))
	assert.True(t, strings.HasSuffix(got, "Oct 17, 2026 10:00"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rooney011/CodeWeaver/internal/projectfs"
	"github.com/rooney011/CodeWeaver/internal/remediation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approved(action remediation.Action) remediation.Plan {
	return remediation.Plan{
		ID:     "plan-1",
		Action: action,
		Reason: "because",
		Status: remediation.StatusApproved,
	}
}

func newTestExecutor(t *testing.T) (*Executor, string) {
	t.Helper()
	dir := t.TempDir()
	root, err := projectfs.New(dir)
	require.NoError(t, err)
	return New(Config{RecoveryTimeout: time.Second, ScriptTimeout: 2 * time.Second, ScriptHTTPTimeout: time.Second}, root), root.Dir()
}

func TestExecute_Escalate(t *testing.T) {
	e, _ := newTestExecutor(t)
	res := e.Execute(context.Background(), approved(remediation.NewEscalateAction()))
	assert.Equal(t, remediation.ResultEscalated, res.Status)
	assert.Equal(t, "because", res.Details)
}

func TestExecute_UnknownAction(t *testing.T) {
	e, _ := newTestExecutor(t)
	res := e.Execute(context.Background(), approved(remediation.Action{Type: "restart_service"}))
	assert.Equal(t, remediation.ResultError, res.Status)
	assert.Equal(t, NoExecutionPath, res.Details)

	// Tag without its payload is just as unknown.
	res = e.Execute(context.Background(), approved(remediation.Action{Type: remediation.ActionResolveExternal}))
	assert.Equal(t, NoExecutionPath, res.Details)
}

func TestExecute_RequiresApproval(t *testing.T) {
	e, _ := newTestExecutor(t)
	plan := approved(remediation.NewEscalateAction())
	plan.Status = remediation.StatusPending
	res := e.Execute(context.Background(), plan)
	assert.Equal(t, remediation.ResultError, res.Status)
	assert.Contains(t, res.Details, "only approved plans")
}

func TestResolveExternal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"status":"resolved"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	e, _ := newTestExecutor(t)

	res := e.Execute(context.Background(), approved(remediation.NewResolveAction(srv.URL+"/ok")))
	assert.Equal(t, remediation.ResultSuccess, res.Status)
	assert.Contains(t, res.Output, "resolved")
	assert.Equal(t, int32(1), calls.Load())

	res = e.Execute(context.Background(), approved(remediation.NewResolveAction(srv.URL+"/fail")))
	assert.Equal(t, remediation.ResultError, res.Status)
	assert.Contains(t, res.Details, "500")
	assert.Equal(t, int32(2), calls.Load(), "no retry on failure")
}

func TestResolveExternal_TransportFailureAndTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	root, err := projectfs.New(t.TempDir())
	require.NoError(t, err)
	e := New(Config{RecoveryTimeout: 50 * time.Millisecond}, root)

	res := e.Execute(context.Background(), approved(remediation.NewResolveAction(slow.URL)))
	assert.Equal(t, remediation.ResultError, res.Status)

	res = e.Execute(context.Background(), approved(remediation.NewResolveAction("http://127.0.0.1:1/chaos/resolve")))
	assert.Equal(t, remediation.ResultError, res.Status)

	res = e.Execute(context.Background(), approved(remediation.NewResolveAction("://bad")))
	assert.Equal(t, remediation.ResultError, res.Status)
}

func backups(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.bak"))
	require.NoError(t, err)
	return matches
}

func TestApplyPatch_ReplacesAndBacksUp(t *testing.T) {
	e, dir := newTestExecutor(t)
	path := filepath.Join(dir, "app.txt")
	require.NoError(t, os.WriteFile(path, []byte("A B C"), 0o644))

	res := e.Execute(context.Background(), approved(remediation.NewPatchAction("app.txt", "B", "X")))
	require.Equal(t, remediation.ResultSuccess, res.Status, res.Details)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "A X C", string(data))

	bak := backups(t, dir)
	require.Len(t, bak, 1)
	assert.Equal(t, bak[0], res.BackupPath)
	saved, err := os.ReadFile(bak[0])
	require.NoError(t, err)
	assert.Equal(t, "A B C", string(saved))
}

func TestApplyPatch_FirstOccurrenceOnly(t *testing.T) {
	e, dir := newTestExecutor(t)
	path := filepath.Join(dir, "app.txt")
	require.NoError(t, os.WriteFile(path, []byte("B B B"), 0o644))

	res := e.Execute(context.Background(), approved(remediation.NewPatchAction("app.txt", "B", "X")))
	require.Equal(t, remediation.ResultSuccess, res.Status)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "X B B", string(data))
}

func TestApplyPatch_MismatchLeavesFileAndNoBackup(t *testing.T) {
	e, dir := newTestExecutor(t)
	path := filepath.Join(dir, "app.txt")
	require.NoError(t, os.WriteFile(path, []byte("A B C"), 0o644))

	res := e.Execute(context.Background(), approved(remediation.NewPatchAction("app.txt", "Z", "X")))
	assert.Equal(t, remediation.ResultError, res.Status)
	assert.Equal(t, "original code section not found", res.Details)
	assert.Empty(t, res.BackupPath)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "A B C", string(data))
	assert.Empty(t, backups(t, dir))
}

func TestApplyPatch_MissingFileAndEscape(t *testing.T) {
	e, dir := newTestExecutor(t)

	res := e.Execute(context.Background(), approved(remediation.NewPatchAction("missing.py", "a", "b")))
	assert.Equal(t, remediation.ResultError, res.Status)
	assert.Contains(t, res.Details, "file not found")

	res = e.Execute(context.Background(), approved(remediation.NewPatchAction("../outside.py", "a", "b")))
	assert.Equal(t, remediation.ResultError, res.Status)
	assert.Empty(t, backups(t, dir))
}

func TestRunScript_CapturesOutputAndCallsRemedy(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	e, _ := newTestExecutor(t)
	script := `import (
	"fmt"
	"remedy"
	"strings"
)

func Remediate() error {
	status, err := remedy.Post("` + srv.URL + `/reset")
	if err != nil {
		return err
	}
	fmt.Println(strings.ToUpper("reset"), status)
	remedy.Logf("done in %d step", 1)
	return nil
}`

	res := e.Execute(context.Background(), approved(remediation.NewScriptAction(script)))
	require.Equal(t, remediation.ResultSuccess, res.Status, res.Details)
	assert.Contains(t, res.Output, "RESET 202")
	assert.Contains(t, res.Output, "done in 1 step")
	assert.Contains(t, res.Details, "RESET 202")
	assert.Contains(t, res.Details, "done in 1 step")
	assert.Equal(t, int32(1), hits.Load())
}

func TestRunScript_NoOutputDetails(t *testing.T) {
	e, _ := newTestExecutor(t)
	res := e.Execute(context.Background(), approved(remediation.NewScriptAction("func Remediate() error { return nil }")))
	require.Equal(t, remediation.ResultSuccess, res.Status, res.Details)
	assert.Equal(t, "Script executed successfully (no output)", res.Details)
	assert.Empty(t, res.Output)
}

func TestRunScript_Failures(t *testing.T) {
	e, _ := newTestExecutor(t)

	cases := map[string]string{
		"returns error":   "import \"errors\"\nfunc Remediate() error { return errors.New(\"still broken\") }",
		"panics":          "func Remediate() error { var m map[string]int; m[\"x\"] = 1; return nil }",
		"denied import":   "import \"os\"\nfunc Remediate() error { return os.Remove(\"/tmp/x\") }",
		"no entry point":  "func Fix() error { return nil }",
		"wrong signature": "func Remediate() { }",
		"syntax":          "func Remediate() error {",
	}
	for name, script := range cases {
		t.Run(name, func(t *testing.T) {
			res := e.Execute(context.Background(), approved(remediation.NewScriptAction(script)))
			assert.Equal(t, remediation.ResultError, res.Status)
			assert.NotEmpty(t, res.Details)
		})
	}
}

func TestRunScript_Timeout(t *testing.T) {
	root, err := projectfs.New(t.TempDir())
	require.NoError(t, err)
	e := New(Config{ScriptTimeout: 50 * time.Millisecond}, root)

	script := "import \"time\"\nfunc Remediate() error { time.Sleep(500 * time.Millisecond); return nil }"
	start := time.Now()
	res := e.Execute(context.Background(), approved(remediation.NewScriptAction(script)))
	assert.Equal(t, remediation.ResultError, res.Status)
	assert.True(t, strings.Contains(res.Details, "timed out") || strings.Contains(res.Details, "deadline"), res.Details)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 4}
	n, err := b.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "abcd\n[output truncated]", b.String())
}

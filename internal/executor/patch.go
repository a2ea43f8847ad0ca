package executor

import (
	"fmt"
	"strings"

	cwerrors "github.com/rooney011/CodeWeaver/internal/errors"
	"github.com/rooney011/CodeWeaver/internal/remediation"
)

// applyPatch replaces the first occurrence of OriginalCode. The file is only
// backed up and written once the original code is known to be present.
func (e *Executor) applyPatch(p remediation.PatchAction) remediation.ExecutionResult {
	if e.root == nil {
		return errorResult("no project root configured")
	}

	data, err := e.root.ReadFile(p.FilePath)
	if err != nil {
		if cwerrors.IsNotFound(err) {
			return errorResult(fmt.Sprintf("file not found: %s", p.FilePath))
		}
		return errorResult(fmt.Sprintf("cannot read %s: %v", p.FilePath, err))
	}
	content := string(data)

	if p.OriginalCode == "" || !strings.Contains(content, p.OriginalCode) {
		return errorResult(cwerrors.ErrPatchMismatch.Error())
	}

	backupPath, err := e.root.Backup(p.FilePath)
	if err != nil {
		return errorResult(fmt.Sprintf("backup of %s failed, file left unchanged: %v", p.FilePath, err))
	}

	patched := strings.Replace(content, p.OriginalCode, p.FixedCode, 1)
	if err := e.root.WriteFile(p.FilePath, []byte(patched)); err != nil {
		return remediation.ExecutionResult{
			Status:     remediation.ResultError,
			Details:    fmt.Sprintf("writing %s failed: %v", p.FilePath, err),
			BackupPath: backupPath,
		}
	}

	return remediation.ExecutionResult{
		Status:     remediation.ResultSuccess,
		Details:    fmt.Sprintf("patched %s; backup at %s", p.FilePath, backupPath),
		BackupPath: backupPath,
	}
}

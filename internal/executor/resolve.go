package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rooney011/CodeWeaver/internal/remediation"
)

const maxResponseExcerpt = 512

// resolveExternal issues exactly one POST to target. Any 2xx is success;
// everything else is an error and is not retried.
func (e *Executor) resolveExternal(ctx context.Context, target string) remediation.ExecutionResult {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RecoveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid recovery endpoint %q: %v", target, err))
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return errorResult(fmt.Sprintf("recovery call to %s failed: %v", target, err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseExcerpt))
	excerpt := strings.TrimSpace(string(body))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remediation.ExecutionResult{
			Status:  remediation.ResultError,
			Details: fmt.Sprintf("recovery endpoint %s returned %d", target, resp.StatusCode),
			Output:  excerpt,
		}
	}
	return remediation.ExecutionResult{
		Status:  remediation.ResultSuccess,
		Details: fmt.Sprintf("recovery endpoint %s returned %d", target, resp.StatusCode),
		Output:  excerpt,
	}
}

package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/rooney011/CodeWeaver/internal/logging"
	"github.com/rooney011/CodeWeaver/internal/remediation"
	"github.com/rooney011/CodeWeaver/internal/safety"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

const maxScriptOutput = 64 << 10

// ScriptPackages are the standard library packages visible to scripts.
// Anything else, including os and net, fails to resolve.
var ScriptPackages = []string{
	"bytes",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"sort",
	"strconv",
	"strings",
	"time",
}

// RemedyPackage is the import path of the capability package scripts use to
// reach the outside world.
const RemedyPackage = "remedy"

// runScript interprets a gated script and calls its Remediate function. The
// interpreter sees only ScriptPackages and the remedy capability table.
func (e *Executor) runScript(ctx context.Context, script string) remediation.ExecutionResult {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ScriptTimeout)
	defer cancel()

	out := &cappedBuffer{limit: maxScriptOutput}
	i := interp.New(interp.Options{
		Stdin:                strings.NewReader(""),
		Stdout:               out,
		Stderr:               out,
		SourcecodeFilesystem: emptyFS{},
	})
	if err := i.Use(e.scriptSymbols(ctx, out)); err != nil {
		return errorResult(fmt.Sprintf("failed to prepare script runtime: %v", err))
	}

	if _, err := i.EvalWithContext(ctx, safety.NormalizeScript(script)); err != nil {
		return scriptError("script failed to load", err, out)
	}
	v, err := i.EvalWithContext(ctx, "main."+safety.EntryPoint)
	if err != nil {
		return scriptError("script has no "+safety.EntryPoint+" function", err, out)
	}
	remediate, ok := v.Interface().(func() error)
	if !ok {
		return errorResult(fmt.Sprintf("%s has incorrect signature (expected: func() error)", safety.EntryPoint))
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- remediate()
	}()

	select {
	case err := <-done:
		if err != nil {
			return scriptError("script returned an error", err, out)
		}
		output := out.String()
		return remediation.ExecutionResult{
			Status:  remediation.ResultSuccess,
			Details: scriptDetails(output),
			Output:  output,
		}
	case <-ctx.Done():
		// The interpreted call cannot be interrupted; its HTTP calls share ctx
		// and fail fast, and the goroutine exits when the script returns.
		return scriptError("script timed out", ctx.Err(), out)
	}
}

// scriptDetails reports captured output so callers reading only details see it.
func scriptDetails(output string) string {
	output = strings.TrimRight(output, "\n")
	if strings.TrimSpace(output) == "" {
		return "Script executed successfully (no output)"
	}
	return "Script executed successfully. Output:\n" + output
}

func scriptError(what string, err error, out *cappedBuffer) remediation.ExecutionResult {
	return remediation.ExecutionResult{
		Status:  remediation.ResultError,
		Details: fmt.Sprintf("%s: %v", what, err),
		Output:  out.String(),
	}
}

// scriptSymbols builds the allow-listed symbol table for one run.
func (e *Executor) scriptSymbols(ctx context.Context, out io.Writer) interp.Exports {
	exports := interp.Exports{}
	for _, pkg := range ScriptPackages {
		key := pkg + "/" + path.Base(pkg)
		src, ok := stdlib.Symbols[key]
		if !ok {
			continue
		}
		symbols := make(map[string]reflect.Value, len(src))
		for name, value := range src {
			symbols[name] = value
		}
		exports[key] = symbols
	}

	// Route fmt printing to the captured output.
	if fmtSymbols, ok := exports["fmt/fmt"]; ok {
		fmtSymbols["Print"] = reflect.ValueOf(func(a ...any) (int, error) { return fmt.Fprint(out, a...) })
		fmtSymbols["Printf"] = reflect.ValueOf(func(format string, a ...any) (int, error) { return fmt.Fprintf(out, format, a...) })
		fmtSymbols["Println"] = reflect.ValueOf(func(a ...any) (int, error) { return fmt.Fprintln(out, a...) })
	}

	exports[RemedyPackage+"/"+RemedyPackage] = e.remedySymbols(ctx, out)
	return exports
}

// remedySymbols exposes a timeout-bounded HTTP client and a logging sink.
func (e *Executor) remedySymbols(ctx context.Context, out io.Writer) map[string]reflect.Value {
	logger := logging.ForComponent("script")
	client := &http.Client{Timeout: e.cfg.ScriptHTTPTimeout, Transport: e.httpClient.Transport}

	do := func(method, url string) (int, string, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return 0, "", err
		}
		resp, err := client.Do(req)
		if err != nil {
			return 0, "", err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptOutput))
		logger.Info().Str("method", method).Str("url", url).Int("status", resp.StatusCode).Msg("Script HTTP call")
		return resp.StatusCode, string(body), err
	}

	return map[string]reflect.Value{
		"Post": reflect.ValueOf(func(url string) (int, error) {
			status, _, err := do(http.MethodPost, url)
			return status, err
		}),
		"Get": reflect.ValueOf(func(url string) (int, string, error) {
			return do(http.MethodGet, url)
		}),
		"Logf": reflect.ValueOf(func(format string, args ...any) {
			msg := fmt.Sprintf(format, args...)
			fmt.Fprintln(out, msg)
			logger.Info().Msg(msg)
		}),
	}
}

// emptyFS stops the interpreter from loading package sources from disk.
type emptyFS struct{}

func (emptyFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// cappedBuffer is a goroutine-safe buffer that drops output past limit.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room < len(p) {
		if room > 0 {
			b.buf.Write(p[:room])
		}
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}

package agent

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cwerrors "github.com/rooney011/CodeWeaver/internal/errors"
)

const maxLogLineBytes = 1 << 20

// LogTailer reads the most recent lines of service logs under a fixed directory.
type LogTailer struct {
	dir         string
	defaultPath string
	lines       int
}

// NewLogTailer confines reads to dir. defaultPath is used when an alert names
// no log file.
func NewLogTailer(dir, defaultPath string, lines int) (*LogTailer, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve log dir: %w", err)
	}
	if lines <= 0 {
		lines = 50
	}
	return &LogTailer{dir: filepath.Clean(abs), defaultPath: defaultPath, lines: lines}, nil
}

// resolve maps a requested log path to an absolute path inside the log dir.
func (t *LogTailer) resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = t.defaultPath
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.dir, path)
	}
	path = filepath.Clean(path)

	if !inside(t.dir, path) {
		return "", cwerrors.New(cwerrors.KindInvalidInput, "logtail.resolve", path,
			fmt.Errorf("log path is outside %s", t.dir))
	}
	if real, err := filepath.EvalSymlinks(path); err == nil {
		realDir, derr := filepath.EvalSymlinks(t.dir)
		if derr != nil {
			realDir = t.dir
		}
		if !inside(realDir, real) {
			return "", cwerrors.New(cwerrors.KindInvalidInput, "logtail.resolve", path,
				fmt.Errorf("log path resolves outside %s", t.dir))
		}
	}
	return path, nil
}

func inside(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// Tail returns the last configured number of lines of the requested log,
// joined with their original newlines, and the resolved path.
func (t *LogTailer) Tail(path string) (string, string, error) {
	resolved, err := t.resolve(path)
	if err != nil {
		return "", path, err
	}

	f, err := os.Open(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return "", resolved, cwerrors.NotFound("logtail.tail", resolved, err)
		}
		return "", resolved, fmt.Errorf("open log %s: %w", resolved, err)
	}
	defer f.Close()

	window := make([]string, 0, t.lines)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLogLineBytes)
	for scanner.Scan() {
		if len(window) == t.lines {
			copy(window, window[1:])
			window = window[:t.lines-1]
		}
		window = append(window, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", resolved, fmt.Errorf("read log %s: %w", resolved, err)
	}
	if len(window) == 0 {
		return "", resolved, nil
	}
	return strings.Join(window, "\n") + "\n", resolved, nil
}

// Package projectfs gives read, backup and write access to files under a single
// project root. Paths that resolve outside the root are rejected.
package projectfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	cwerrors "github.com/rooney011/CodeWeaver/internal/errors"
)

// ErrOutsideRoot is returned for paths that escape the project root.
var ErrOutsideRoot = errors.New("path escapes project root")

const backupTimeFmt = "20060102T150405.000000000"

// Root is a project directory.
type Root struct {
	dir string
	now func() time.Time
}

// New returns a Root for dir. The directory does not need to exist yet.
func New(dir string) (*Root, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("project root must not be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	return &Root{dir: filepath.Clean(abs), now: time.Now}, nil
}

// Dir returns the absolute root directory.
func (r *Root) Dir() string {
	return r.dir
}

// Resolve maps a relative (or root-prefixed absolute) path to an absolute path
// inside the root. Symlinks that point outside the root are rejected too.
func (r *Root) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", cwerrors.New(cwerrors.KindInvalidInput, "projectfs.resolve", name, errors.New("empty path"))
	}

	var candidate string
	if filepath.IsAbs(name) {
		candidate = filepath.Clean(name)
	} else {
		candidate = filepath.Join(r.dir, name)
	}
	if !r.contains(candidate) {
		return "", cwerrors.New(cwerrors.KindInvalidInput, "projectfs.resolve", name, ErrOutsideRoot)
	}

	if real, err := filepath.EvalSymlinks(candidate); err == nil {
		rootReal, rootErr := filepath.EvalSymlinks(r.dir)
		if rootErr != nil {
			rootReal = r.dir
		}
		if !within(rootReal, real) {
			return "", cwerrors.New(cwerrors.KindInvalidInput, "projectfs.resolve", name, ErrOutsideRoot)
		}
	}
	return candidate, nil
}

func (r *Root) contains(path string) bool {
	return within(r.dir, path)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// Stat returns file info, reporting missing files as not-found errors.
func (r *Root) Stat(name string) (string, fs.FileInfo, error) {
	path, err := r.Resolve(name)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, cwerrors.NotFound("projectfs.stat", name, err)
		}
		return "", nil, err
	}
	if info.IsDir() {
		return "", nil, cwerrors.New(cwerrors.KindInvalidInput, "projectfs.stat", name, errors.New("is a directory"))
	}
	return path, info, nil
}

// ReadFile reads a file under the root.
func (r *Root) ReadFile(name string) ([]byte, error) {
	path, _, err := r.Stat(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Backup copies name to "<name>.<timestamp>.bak" next to the original and
// returns the backup path. The copy keeps the original permissions.
func (r *Root) Backup(name string) (string, error) {
	path, info, err := r.Stat(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s for backup: %w", name, err)
	}

	backupPath := fmt.Sprintf("%s.%s.bak", path, r.now().UTC().Format(backupTimeFmt))
	f, err := os.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return "", fmt.Errorf("create backup for %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(backupPath)
		return "", fmt.Errorf("write backup for %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(backupPath)
		return "", fmt.Errorf("close backup for %s: %w", name, err)
	}
	return backupPath, nil
}

// WriteFile replaces the content of an existing file atomically via a
// temporary file in the same directory.
func (r *Root) WriteFile(name string, data []byte) error {
	path, info, err := r.Stat(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return os.Rename(tmpName, path)
}

package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/abhisek/alain/internal/notebook"
)

// checkpoints stores accepted sections under <dir>/<key>/sections/N.json so
// an interrupted run can resume. A zero value with an empty dir is a no-op.
type checkpoints struct {
	dir string
}

func newCheckpoints(root, key string) checkpoints {
	if root == "" {
		return checkpoints{}
	}
	return checkpoints{dir: filepath.Join(root, key, "sections")}
}

func (c checkpoints) path(n int) string {
	return filepath.Join(c.dir, strconv.Itoa(n)+".json")
}

// load returns the saved section n, or nil when none exists. An unreadable
// checkpoint is treated as missing.
func (c checkpoints) load(n int) (*notebook.Section, error) {
	if c.dir == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.path(n))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %d: %w", n, err)
	}
	var s notebook.Section
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode checkpoint %d: %w", n, err)
	}
	return &s, nil
}

// save writes s as the checkpoint for outline step n.
func (c checkpoints) save(n int, s *notebook.Section) error {
	if c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint %d: %w", n, err)
	}

	tmp, err := os.CreateTemp(c.dir, ".section-*")
	if err != nil {
		return fmt.Errorf("write checkpoint %d: %w", n, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint %d: %w", n, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint %d: %w", n, err)
	}
	return os.Rename(tmp.Name(), c.path(n))
}

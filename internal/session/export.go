package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/netty/analyst/internal/api"
)

// Saver stores a downloaded report and returns where it ended up
type Saver func(exp *api.Export) (string, error)

// DirSaver writes reports into dir, creating it if needed. An empty dir means
// the working directory.
func DirSaver(dir string) Saver {
	if dir == "" {
		dir = "."
	}
	return func(exp *api.Export) (string, error) {
		if exp == nil || exp.FileName == "" {
			return "", fmt.Errorf("save report: nothing to save")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("save report: %w", err)
		}
		path := filepath.Join(dir, filepath.Base(exp.FileName))
		if err := os.WriteFile(path, exp.Data, 0o644); err != nil {
			return "", fmt.Errorf("save report: %w", err)
		}
		return path, nil
	}
}

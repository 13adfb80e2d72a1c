package app

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/five82/vrcpulse/internal/activity"
	"github.com/five82/vrcpulse/internal/config"
	"github.com/five82/vrcpulse/internal/session"
)

// exportFile writes the activity log to path, creating directories as
// needed. A .yaml/.yml or .json extension overrides format.
func exportFile(m *session.Manager, path string, format activity.Format) error {
	resolved, err := config.ExpandPath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	switch strings.ToLower(filepath.Ext(resolved)) {
	case ".yaml", ".yml":
		format = activity.FormatYAML
	case ".json":
		format = activity.FormatJSON
	}

	var buf bytes.Buffer
	if err := m.ExportLog(&buf, format); err != nil {
		return fmt.Errorf("encode activity log: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := os.WriteFile(resolved, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

package exporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Manifest records whether an export bundle is complete, and which
// entities failed outright, so a partial export is never silently
// mistaken for a full one. Written atomically (temp file + rename),
// grounded on the teacher's export.WriteManifest pattern.
type Manifest struct {
	ExportedAt time.Time `json:"exportedAt"`
	Complete   bool      `json:"complete"`
	Failed     []string  `json:"failed,omitempty"`
}

// WriteManifest writes m to path via a temp-file-then-rename, so a
// reader never observes a half-written manifest.
func WriteManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("exporter: marshal manifest: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("exporter: create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("exporter: write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("exporter: close manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("exporter: replace manifest: %w", err)
	}
	return nil
}

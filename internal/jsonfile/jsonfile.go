// Package jsonfile provides the small read-modify-write helpers shared by
// every JSON-backed record in .kd: thread metadata, session records, and
// branch state blobs.
package jsonfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Read unmarshals the file at path into v.
func Read(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("jsonfile: parse %s: %w", path, err)
	}
	return nil
}

// Write marshals v and writes it to path, creating parent directories as
// needed. Each record has exactly one writer, so no temp-file-and-rename
// dance is required beyond what os.WriteFile already gives us.
func Write(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("jsonfile: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile: marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("jsonfile: write %s: %w", path, err)
	}
	return nil
}

// Package eval implements the read-only tidectl harnesses: lexical
// clustering stability, embedding story preview, and cluster health. Each
// prints a comparison table and writes a timestamped JSON snapshot plus a
// -latest.json pointer.
package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const snapshotTimeFormat = "20060102T150405Z"

// Meta is attached to every snapshot so runs are comparable after the
// fact.
type Meta struct {
	Name        string    `json:"name"`
	GeneratedAt time.Time `json:"generated_at"`
	Hours       int       `json:"hours"`
	Limit       int       `json:"limit"`
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model,omitempty"`
}

// WriteSnapshot writes payload as <name>-<stamp>.json in dir and refreshes
// the <name>-latest.json pointer. Returns the timestamped path.
func WriteSnapshot(dir, name string, payload any) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot dir: %w", err)
	}

	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}

	stamp := time.Now().UTC().Format(snapshotTimeFormat)
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.json", name, stamp))
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}

	latest := filepath.Join(dir, name+"-latest.json")
	if err := os.WriteFile(latest, encoded, 0o644); err != nil {
		return "", fmt.Errorf("writing latest pointer: %w", err)
	}
	return path, nil
}

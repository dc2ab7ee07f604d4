package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"
)

// ManifestFile is the name of the run summary written next to the artifacts.
const ManifestFile = "manifest.json"

// Manifest is the JSON summary of a run. It is written to the output
// directory and is also the payload announced on run completion.
type Manifest struct {
	RunID     string             `json:"run_id"`
	CourseURL string             `json:"course_url"`
	Format    Format             `json:"format"`
	Started   time.Time          `json:"started"`
	Finished  time.Time          `json:"finished"`
	Successes []ManifestArtifact `json:"successes"`
	Failures  []ManifestFailure  `json:"failures"`
}

// ManifestArtifact describes one persisted page.
type ManifestArtifact struct {
	Index   int    `json:"index"`
	Locator string `json:"locator"`
	Title   string `json:"title"`
	Path    string `json:"path"`
	Bytes   int64  `json:"bytes"`
	SHA256  string `json:"sha256,omitempty"`
}

// ManifestFailure describes one page that exhausted its retries.
type ManifestFailure struct {
	Index   int    `json:"index"`
	Locator string `json:"locator"`
	Error   string `json:"error"`
}

// NewManifest summarises result.
func NewManifest(cfg RunConfig, result RunResult) Manifest {
	m := Manifest{
		RunID:     result.RunID,
		CourseURL: cfg.CourseURL,
		Format:    cfg.Format,
		Started:   result.Started.UTC(),
		Finished:  result.Finished.UTC(),
		Successes: make([]ManifestArtifact, 0, len(result.Successes)),
		Failures:  make([]ManifestFailure, 0, len(result.Failures)),
	}
	for _, s := range result.Successes {
		m.Successes = append(m.Successes, ManifestArtifact{
			Index:   s.Page.Index,
			Locator: s.Page.Locator,
			Title:   s.Page.Title,
			Path:    s.ArtifactPath,
			Bytes:   s.Bytes,
			SHA256:  s.Checksum,
		})
	}
	for _, f := range result.Failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		m.Failures = append(m.Failures, ManifestFailure{
			Index:   f.Page.Index,
			Locator: f.Page.Locator,
			Error:   msg,
		})
	}
	return m
}

// WriteManifest persists m as indented JSON under dir.
func WriteManifest(ctx context.Context, store Storage, dir string, m Manifest) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if err := store.EnsureDir(ctx, dir); err != nil {
		return "", fmt.Errorf("ensure manifest dir: %w", err)
	}
	path := filepath.Join(dir, ManifestFile)
	if err := store.WriteFile(ctx, path, append(data, '\n')); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

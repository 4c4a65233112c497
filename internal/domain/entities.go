package domain

import (
	"time"
)

// RemoteEntry is one archive listed in the portal catalog.
type RemoteEntry struct {
	// RemotePath is the catalog url attribute, relative to the download base.
	RemotePath       string `json:"remote_path"`
	ExpectedChecksum string `json:"expected_checksum"`
	LocalFilename    string `json:"local_filename"`
	Entity           string `json:"entity"`
}

// WorkList is the ordered set of entries selected for a fetch pass.
type WorkList []RemoteEntry

// ChangedFiles accumulates the absolute paths written during a fetch pass,
// in first-write order and without duplicates. It is not safe for
// concurrent use.
type ChangedFiles struct {
	paths []string
	seen  map[string]struct{}
}

// NewChangedFiles returns an empty set.
func NewChangedFiles() *ChangedFiles {
	return &ChangedFiles{seen: make(map[string]struct{})}
}

// Add records path and reports whether it was new.
func (c *ChangedFiles) Add(path string) bool {
	if c.seen == nil {
		c.seen = make(map[string]struct{})
	}
	if _, ok := c.seen[path]; ok {
		return false
	}
	c.seen[path] = struct{}{}
	c.paths = append(c.paths, path)
	return true
}

// Contains reports whether path was recorded.
func (c *ChangedFiles) Contains(path string) bool {
	_, ok := c.seen[path]
	return ok
}

// Paths returns a copy of the recorded paths.
func (c *ChangedFiles) Paths() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.paths))
	copy(out, c.paths)
	return out
}

// Len returns the number of recorded paths.
func (c *ChangedFiles) Len() int {
	if c == nil {
		return 0
	}
	return len(c.paths)
}

// ConversionResult is the outcome of one converter invocation.
type ConversionResult struct {
	File     string        `json:"file"`
	Database string        `json:"database"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// FetchReport summarizes one pipeline run.
type FetchReport struct {
	RunID      string             `json:"run_id"`
	Listed     int                `json:"listed"`
	Current    int                `json:"current"`
	Downloaded int                `json:"downloaded"`
	Failed     []string           `json:"failed,omitempty"`
	Changed    []string           `json:"changed,omitempty"`
	Mirrored   int                `json:"mirrored"`
	Converted  []ConversionResult `json:"converted,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

package diff

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// Stats counts changed lines for one file. A modified line counts once in each column.
type Stats struct {
	Path    string `json:"path"`
	Added   int    `json:"added"`
	Deleted int    `json:"deleted"`
	Created bool   `json:"created,omitempty"`
}

// Generate creates a unified diff between original and modified content using the standard diff tool
func Generate(originalContent, modifiedContent, filename string) (string, error) {
	tempDir, err := os.MkdirTemp("", "launchpad-diff")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	originalFile := filepath.Join(tempDir, "original")
	modifiedFile := filepath.Join(tempDir, "modified")

	if err := os.WriteFile(originalFile, []byte(originalContent), 0644); err != nil {
		return "", fmt.Errorf("failed to write original file: %w", err)
	}

	if err := os.WriteFile(modifiedFile, []byte(modifiedContent), 0644); err != nil {
		return "", fmt.Errorf("failed to write modified file: %w", err)
	}

	cmd := exec.Command("diff", "-u", "--label", "a/"+filename, "--label", "b/"+filename, originalFile, modifiedFile)
	output, err := cmd.Output()

	// exit code 1 means the files differ
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return string(output), nil
		}
		return "", fmt.Errorf("failed to run diff command: %w", err)
	}

	return string(output), nil
}

// Stat summarises the change from original to modified.
func Stat(originalContent, modifiedContent, filename string) (Stats, error) {
	stats := Stats{
		Path:    filename,
		Created: originalContent == "" && modifiedContent != "",
	}

	if originalContent == modifiedContent {
		return stats, nil
	}

	patch, err := Generate(originalContent, modifiedContent, filename)
	if err != nil {
		return stats, err
	}

	fileDiff, err := godiff.ParseFileDiff([]byte(patch))
	if err != nil {
		return stats, fmt.Errorf("failed to parse diff: %w", err)
	}

	s := fileDiff.Stat()
	stats.Added = int(s.Added + s.Changed)
	stats.Deleted = int(s.Deleted + s.Changed)

	return stats, nil
}

// StatPatch counts the lines a single-file unified diff changes, without applying it.
func StatPatch(filename string, patchText string) (Stats, error) {
	stats := Stats{Path: filename}

	fileDiff, err := godiff.ParseFileDiff([]byte(normalizeLineEndings(patchText)))
	if err != nil {
		return stats, fmt.Errorf("failed to parse diff: %w", err)
	}

	s := fileDiff.Stat()
	stats.Added = int(s.Added + s.Changed)
	stats.Deleted = int(s.Deleted + s.Changed)
	stats.Created = fileDiff.OrigName == "/dev/null"

	return stats, nil
}

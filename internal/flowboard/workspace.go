package flowboard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// validateWorkspaceFileName is the one input-validation security control
// in the core: markdown files only, no traversal, no subdirectories. It
// must reject before any filesystem access happens.
func validateWorkspaceFileName(fileName string) error {
	if !strings.HasSuffix(fileName, ".md") ||
		strings.Contains(fileName, "..") ||
		strings.Contains(fileName, "/") ||
		strings.Contains(fileName, "\\") {
		return fmt.Errorf("%w: invalid file name", ErrInvalidInput)
	}
	return nil
}

// ReadWorkspaceFile returns the raw content of a markdown file from the
// external workspace.
func (s *Store) ReadWorkspaceFile(fileName string) (string, error) {
	if err := validateWorkspaceFileName(fileName); err != nil {
		return "", err
	}
	if s.workspaceDir == "" {
		return "", ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.workspaceDir, fileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	return string(data), nil
}

// WriteWorkspaceFile overwrites a workspace markdown file, publishes the
// file-edited event, and feeds the reactive memory extractor.
func (s *Store) WriteWorkspaceFile(fileName, content string) error {
	if err := validateWorkspaceFileName(fileName); err != nil {
		return err
	}
	if s.workspaceDir == "" {
		return ErrNotFound
	}
	if err := os.WriteFile(filepath.Join(s.workspaceDir, fileName), []byte(content), 0o644); err != nil {
		return err
	}
	s.noteFileEdited(fileName)
	return nil
}

// NoteExternalEdit records a workspace edit that happened outside the
// HTTP API (the watcher's path into the pipeline).
func (s *Store) NoteExternalEdit(fileName string) {
	if validateWorkspaceFileName(fileName) != nil {
		return
	}
	s.noteFileEdited(fileName)
}

func (s *Store) noteFileEdited(fileName string) {
	s.bus.Publish(EventFileEdited, FileEditedEvent{File: fileName})
	s.ExtractMemoryFromFileEdit(fileName)
}

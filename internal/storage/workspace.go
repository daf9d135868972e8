package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o600
)

var (
	ErrUnsafePath       = errors.New("path escapes workspace")
	ErrInvalidWorkspace = errors.New("invalid workspace id")
)

// Workspace is the request-scoped pair of directories holding one
// generation's uploads and artifacts.
type Workspace struct {
	ID        string
	UploadDir string
	OutputDir string
}

// Workspaces owns the upload and output roots. Every request gets its own
// subdirectory in each root, keyed by a UUID.
type Workspaces struct {
	uploadRoot string
	outputRoot string
}

func NewWorkspaces(uploadRoot, outputRoot string) (*Workspaces, error) {
	up, err := filepath.Abs(uploadRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	out, err := filepath.Abs(outputRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}

	for _, dir := range []string{up, out} {
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	return &Workspaces{uploadRoot: up, outputRoot: out}, nil
}

// Open returns the workspace paths for id without touching the filesystem.
func (w *Workspaces) Open(id string) (Workspace, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Workspace{}, fmt.Errorf("%w: %q", ErrInvalidWorkspace, id)
	}
	return Workspace{
		ID:        id,
		UploadDir: filepath.Join(w.uploadRoot, id),
		OutputDir: filepath.Join(w.outputRoot, id),
	}, nil
}

// Create makes both directories of the workspace for id.
func (w *Workspaces) Create(id string) (Workspace, error) {
	ws, err := w.Open(id)
	if err != nil {
		return Workspace{}, err
	}

	for _, dir := range []string{ws.UploadDir, ws.OutputDir} {
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return Workspace{}, fmt.Errorf("create workspace dir: %w", err)
		}
	}
	return ws, nil
}

// Stage writes an upload into the workspace upload dir under a sanitized
// name prefixed by kind, and returns the absolute path.
func (w *Workspaces) Stage(ws Workspace, kind, filename string, content io.Reader) (string, error) {
	name := SanitizeFilename(filename)
	if name == "" {
		name = "upload"
	}

	path := filepath.Join(ws.UploadDir, kind+"_"+name)
	if !within(ws.UploadDir, path) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, filename)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermissions)
	if err != nil {
		return "", fmt.Errorf("open staged file: %w", err)
	}

	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return "", fmt.Errorf("write staged file: %w", err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close staged file: %w", err)
	}

	return path, nil
}

// Remove deletes both directories of the workspace.
func (w *Workspaces) Remove(id string) error {
	ws, err := w.Open(id)
	if err != nil {
		return err
	}
	return errors.Join(os.RemoveAll(ws.UploadDir), os.RemoveAll(ws.OutputDir))
}

// Expired lists the workspaces with a directory last modified before
// now-olderThan. Entries that are not workspace dirs are ignored.
func (w *Workspaces) Expired(olderThan time.Duration) ([]Workspace, error) {
	cutoff := time.Now().Add(-olderThan)
	seen := make(map[string]struct{})
	var expired []Workspace
	var errs []error

	for _, root := range []string{w.uploadRoot, w.outputRoot} {
		entries, err := os.ReadDir(root)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", root, err))
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if _, ok := seen[entry.Name()]; ok {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}

			ws, err := w.Open(entry.Name())
			if err != nil {
				continue
			}
			seen[ws.ID] = struct{}{}
			expired = append(expired, ws)
		}
	}

	return expired, errors.Join(errs...)
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// Ready checks that both roots still exist and accept new files.
func (w *Workspaces) Ready() error {
	for _, root := range []string{w.uploadRoot, w.outputRoot} {
		f, err := os.CreateTemp(root, ".ready-*")
		if err != nil {
			return fmt.Errorf("%s not writable: %w", root, err)
		}
		f.Close()
		os.Remove(f.Name())
	}
	return nil
}

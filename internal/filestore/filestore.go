// Package filestore keeps uploaded source files in a flat upload directory.
//
// Uploads are written to a staging directory first and only renamed into place once ingestion
// succeeded, so a failed upload never leaves a file behind.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"docqa/internal/domain"
)

const stagingDir = ".staging"

type Store struct {
	dir string
}

// New creates the upload and staging directories when missing.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, stagingDir), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir failed: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// CleanName validates a client supplied file name and returns its base name.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/"))))
	if name == "" || name == "/" || name == "." || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: invalid file name", domain.ErrInvalidInput)
	}
	return name, nil
}

// Path returns the final location of name.
func (s *Store) Path(name string) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, clean), nil
}

// Stage copies r into a fresh staging file keeping the extension of name.
func (s *Store) Stage(name string, r io.Reader) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", err
	}
	staged := filepath.Join(s.dir, stagingDir, uuid.NewString()+strings.ToLower(filepath.Ext(clean)))
	f, err := os.OpenFile(staged, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create staged file failed: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(staged)
		return "", fmt.Errorf("write staged file failed: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(staged)
		return "", fmt.Errorf("close staged file failed: %w", err)
	}
	return staged, nil
}

// Commit moves a staged file to its final name, replacing any previous upload.
func (s *Store) Commit(staged, name string) (string, error) {
	final, err := s.Path(name)
	if err != nil {
		return "", err
	}
	if err := os.Rename(staged, final); err != nil {
		return "", fmt.Errorf("commit upload failed: %w", err)
	}
	return final, nil
}

// Discard removes a staged file. Missing files are ignored.
func (s *Store) Discard(staged string) {
	if staged == "" {
		return
	}
	_ = os.Remove(staged)
}

// Exists reports whether an upload with name is present.
func (s *Store) Exists(name string) (bool, error) {
	path, err := s.Path(name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat upload failed: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// Remove deletes an upload, returning domain.ErrNotFound when it does not exist.
func (s *Store) Remove(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, filepath.Base(path))
		}
		return fmt.Errorf("remove upload failed: %w", err)
	}
	return nil
}

// FileInfo describes one stored upload.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Files returns all uploads with size and modification time, sorted by name.
func (s *Store) Files() ([]FileInfo, error) {
	names, err := s.List()
	if err != nil {
		return nil, err
	}
	files := make([]FileInfo, 0, len(names))
	for _, name := range names {
		info, err := os.Stat(filepath.Join(s.dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat upload failed: %w", err)
		}
		files = append(files, FileInfo{Name: name, Size: info.Size(), ModTime: info.ModTime()})
	}
	return files, nil
}

// List returns the names of all uploads, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read upload dir failed: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

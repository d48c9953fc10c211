package assets

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/diarysync/internal/filex"
)

// LocalStore keeps asset files flat under one directory, named by their
// asset filename.
type LocalStore struct {
	root string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	root, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("asset store: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Path returns the location of filename inside the store.
func (s *LocalStore) Path(filename string) (string, error) {
	return filex.SafeJoin(s.root, filename)
}

func (s *LocalStore) Exists(filename string) bool {
	p, err := s.Path(filename)
	if err != nil {
		return false
	}
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// Write stores r under filename atomically and returns the file path.
func (s *LocalStore) Write(filename string, r io.Reader) (string, error) {
	p, err := s.Path(filename)
	if err != nil {
		return "", err
	}
	if _, err := filex.WriteAtomic(p, r); err != nil {
		return "", fmt.Errorf("asset store: writing %s: %w", filename, err)
	}
	return p, nil
}

// Remove deletes filename. A missing file is not an error.
func (s *LocalStore) Remove(filename string) error {
	p, err := s.Path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("asset store: removing %s: %w", filename, err)
	}
	return nil
}

// Rename moves from to to and returns the new path.
func (s *LocalStore) Rename(from, to string) (string, error) {
	src, err := s.Path(from)
	if err != nil {
		return "", err
	}
	dst, err := s.Path(to)
	if err != nil {
		return "", err
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("asset store: renaming %s: %w", from, err)
	}
	return dst, nil
}

// Package sidestore is the content-addressable text blob store for raw
// .side documents (spec.md §4.3). Each id maps to exactly one file under a
// configured root; save is last-writer-wins.
package sidestore

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sideruntime/sidesvc/internal/apperr"
)

const extension = ".side"

// Store is a filesystem-backed Script Store rooted at one directory.
type Store struct {
	root string
}

// New creates a Store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.NotFound, err, "create side store root %q", root)
	}
	return &Store{root: root}, nil
}

// sanitize rejects any id that could escape the store root: path
// separators, "..", and leading dots are all refused outright rather than
// rewritten, per spec.md §4.3.
func sanitize(id string) error {
	if id == "" {
		return apperr.New(apperr.InvalidID, "id is empty")
	}
	if strings.ContainsAny(id, "/\\") {
		return apperr.New(apperr.InvalidID, "id %q contains a path separator", id)
	}
	if id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return apperr.New(apperr.InvalidID, "id %q has a leading dot", id)
	}
	if filepath.Clean(id) != id {
		return apperr.New(apperr.InvalidID, "id %q is not a clean path component", id)
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.root, id+extension)
}

// Save writes content under id, overwriting any existing content.
func (s *Store) Save(id string, content []byte) error {
	if err := sanitize(id); err != nil {
		return err
	}
	if err := os.WriteFile(s.path(id), content, 0o644); err != nil {
		return apperr.Wrap(apperr.NotFound, err, "save %q", id)
	}
	return nil
}

// Get returns the raw bytes stored under id.
func (s *Store) Get(id string) ([]byte, error) {
	if err := sanitize(id); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, err, "side %q not found", id)
	}
	return raw, nil
}

// Exists reports whether id has a stored document.
func (s *Store) Exists(id string) bool {
	if err := sanitize(id); err != nil {
		return false
	}
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Delete removes the document stored under id.
func (s *Store) Delete(id string) error {
	if err := sanitize(id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil {
		return apperr.Wrap(apperr.NotFound, err, "side %q not found", id)
	}
	return nil
}

// List returns every stored id in lexical order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, err, "list side store %q", s.root)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), extension) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), extension))
	}
	sort.Strings(ids)
	return ids, nil
}

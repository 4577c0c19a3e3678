// Package blobfs stores encrypted blobs on the local filesystem and owns
// their secure destruction. Blobs live under {root}/{shard}/{id}.enc where
// shard is derived from the file ID; writes go to a temporary name and are
// published by rename, so a crash mid-write never leaves a visible blob.
package blobfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/flipfile/flipfile/internal/pipeline/port"
)

// Store implements port.BlobStore over a local directory tree.
type Store struct {
	root    string
	staging string
	passes  int
}

// New creates the blob store rooted at root, with plaintext spools kept in
// staging. Both directories are created 0700 if absent. wipePasses <= 0
// selects the standard three passes.
func New(root, staging string, wipePasses int) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("blobfs: storage root is required")
	}
	if staging == "" {
		staging = filepath.Join(root, ".staging")
	}
	if wipePasses <= 0 {
		wipePasses = 3
	}

	for _, dir := range []string{root, staging} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("blobfs: create %s: %w", dir, err)
		}
	}

	return &Store{root: root, staging: staging, passes: wipePasses}, nil
}

// shardDir spreads blobs over 256 subdirectories keyed by the file ID.
func shardDir(id string) string {
	return fmt.Sprintf("%02x", murmur3.Sum64([]byte(id))&0xff)
}

// resolve validates a locator and returns its absolute path under root.
func (s *Store) resolve(locator string) (string, error) {
	clean := filepath.Clean(locator)
	if clean == "" || filepath.IsAbs(clean) || strings.Contains(clean, "..") {
		return "", fmt.Errorf("blobfs: invalid locator %q", locator)
	}
	return filepath.Join(s.root, clean), nil
}

// Create opens a write for a new blob keyed by id. Nothing is visible under
// the final locator until Commit.
func (s *Store) Create(id string) (port.BlobWriter, error) {
	rel := filepath.Join(shardDir(id), id+".enc")
	final := filepath.Join(s.root, rel)

	if err := os.MkdirAll(filepath.Dir(final), 0700); err != nil {
		return nil, fmt.Errorf("blobfs: create shard dir: %w", err)
	}

	tmp := final + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("blobfs: create temp blob: %w", err)
	}

	return &blobWriter{f: f, tmp: tmp, final: final, locator: rel}, nil
}

// Open returns a reader over a committed blob. A missing blob surfaces as
// port.ErrNotFound so callers can treat the record as already destroyed.
func (s *Store) Open(locator string) (io.ReadCloser, error) {
	path, err := s.resolve(locator)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, port.ErrNotFound
		}
		return nil, fmt.Errorf("blobfs: open blob: %w", err)
	}
	return f, nil
}

// Wipe overwrites the blob's full extent with fresh random data for the
// configured number of passes, syncing each pass, then unlinks it. A missing
// blob is already gone and is not an error.
func (s *Store) Wipe(ctx context.Context, locator string) error {
	path, err := s.resolve(locator)
	if err != nil {
		return err
	}

	if err := wipeFile(ctx, path, s.passes); err != nil {
		return err
	}

	// Drop the shard directory if this was its last blob.
	_ = os.Remove(filepath.Dir(path))
	return nil
}

// blobWriter is an uncommitted blob write.
type blobWriter struct {
	f       *os.File
	tmp     string
	final   string
	locator string
	done    bool
}

func (w *blobWriter) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

// Commit flushes the temporary file to disk and publishes it atomically under
// the final name.
func (w *blobWriter) Commit() (string, error) {
	if w.done {
		return "", fmt.Errorf("blobfs: writer already finished")
	}
	w.done = true

	if err := w.f.Sync(); err != nil {
		w.discard()
		return "", fmt.Errorf("blobfs: sync blob: %w", err)
	}
	if err := w.f.Close(); err != nil {
		w.discard()
		return "", fmt.Errorf("blobfs: close blob: %w", err)
	}
	if err := os.Rename(w.tmp, w.final); err != nil {
		w.discard()
		return "", fmt.Errorf("blobfs: publish blob: %w", err)
	}
	return w.locator, nil
}

// Abort discards everything written so far.
func (w *blobWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.discard()
	return nil
}

func (w *blobWriter) discard() {
	_ = w.f.Close()
	_ = os.Remove(w.tmp)
}

package blobfs

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/flipfile/flipfile/internal/pipeline/port"
)

// Stage opens a plaintext spool in the staging directory. The spool holds the
// inbound stream while it is screened and hashed, and is wiped like a blob
// when cleaned up: plaintext only ever touches disk inside the staging area
// and never survives the submission that created it.
func (s *Store) Stage() (port.Spool, error) {
	f, err := os.CreateTemp(s.staging, "spool-*")
	if err != nil {
		return nil, fmt.Errorf("blobfs: create spool: %w", err)
	}
	return &spool{f: f, path: f.Name(), passes: s.passes}, nil
}

type spool struct {
	f      *os.File
	path   string
	size   int64
	passes int
}

func (sp *spool) Write(p []byte) (int, error) {
	n, err := sp.f.Write(p)
	sp.size += int64(n)
	return n, err
}

func (sp *spool) Size() int64 {
	return sp.size
}

// Reader returns an independent read handle over everything written so far.
func (sp *spool) Reader() (io.ReadCloser, error) {
	if err := sp.f.Sync(); err != nil {
		return nil, fmt.Errorf("blobfs: sync spool: %w", err)
	}
	f, err := os.Open(sp.path)
	if err != nil {
		return nil, fmt.Errorf("blobfs: reopen spool: %w", err)
	}
	return f, nil
}

// Cleanup wipes and removes the spool. Safe to call unconditionally.
func (sp *spool) Cleanup(ctx context.Context) error {
	_ = sp.f.Close()
	return wipeFile(ctx, sp.path, sp.passes)
}

package blobfs

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
)

// wipeBufSize bounds how much random data is resident during a wipe pass.
const wipeBufSize = 64 * 1024

// wipeObserver, when non-nil, is called after each completed overwrite pass
// while the file is still on disk. Set only from tests.
var wipeObserver func(path string, pass int)

// wipeFile overwrites the full extent of path with fresh random data passes
// times, syncing after each pass, then unlinks it. Each pass draws new
// random bytes, so no two passes write the same content. A file that is
// already gone is treated as wiped.
func wipeFile(ctx context.Context, path string, passes int) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("blobfs: open for wipe: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("blobfs: stat for wipe: %w", err)
	}

	size := info.Size()
	for pass := 0; pass < passes && size > 0; pass++ {
		if err := overwriteRandom(ctx, f, size); err != nil {
			_ = f.Close()
			return fmt.Errorf("blobfs: wipe pass %d: %w", pass+1, err)
		}
		if wipeObserver != nil {
			wipeObserver(path, pass+1)
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("blobfs: close after wipe: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobfs: unlink after wipe: %w", err)
	}
	return nil
}

// overwriteRandom writes size bytes of fresh random data from the start of f
// and forces them to disk. The random source is consumed in bounded chunks;
// ctx is honored at each chunk boundary.
func overwriteRandom(ctx context.Context, f *os.File, size int64) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	buf := make([]byte, wipeBufSize)
	remaining := size
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		if _, err := rand.Read(buf[:n]); err != nil {
			return err
		}
		if _, err := f.Write(buf[:n]); err != nil {
			return err
		}
		remaining -= n
	}

	return f.Sync()
}

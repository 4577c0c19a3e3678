// Package screener provides content screening backends: a built-in
// heuristic pattern scanner and a ClamAV daemon client.
package screener

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/flipfile/flipfile/internal/pipeline/port"
)

// suspiciousPatterns are byte sequences associated with script injection
// and webshell payloads. A match anywhere in the stream flags the file.
var suspiciousPatterns = [][]byte{
	[]byte("eval("),
	[]byte("base64_decode("),
	[]byte("shell_exec("),
	[]byte("passthru("),
	[]byte("system("),
	[]byte("exec("),
	[]byte("<script>"),
	[]byte("javascript:"),
}

const scanBufSize = 32 * 1024

// Heuristic scans content for known suspicious byte patterns. It reads
// the stream in fixed-size windows and carries the tail of each window
// forward so a pattern split across a read boundary is still found.
type Heuristic struct {
	maxPatternLen int
}

// NewHeuristic creates the pattern scanner.
func NewHeuristic() *Heuristic {
	maxLen := 0
	for _, p := range suspiciousPatterns {
		if len(p) > maxLen {
			maxLen = len(p)
		}
	}
	return &Heuristic{maxPatternLen: maxLen}
}

// Screen reads r to EOF and reports whether any suspicious pattern occurs.
func (h *Heuristic) Screen(ctx context.Context, r io.Reader) (port.Verdict, error) {
	carry := h.maxPatternLen - 1
	buf := make([]byte, carry+scanBufSize)
	kept := 0

	for {
		if err := ctx.Err(); err != nil {
			return port.Verdict{}, err
		}
		n, err := r.Read(buf[kept:])
		if n > 0 {
			window := buf[:kept+n]
			for _, pattern := range suspiciousPatterns {
				if bytes.Contains(window, pattern) {
					return port.Verdict{
						Flagged: true,
						Reason:  fmt.Sprintf("matched pattern %q", pattern),
					}, nil
				}
			}
			// Keep the window tail for cross-boundary matches.
			kept = carry
			if len(window) < kept {
				kept = len(window)
			}
			copy(buf, window[len(window)-kept:])
		}
		if err == io.EOF {
			return port.Verdict{}, nil
		}
		if err != nil {
			return port.Verdict{}, fmt.Errorf("screener: read content: %w", err)
		}
	}
}

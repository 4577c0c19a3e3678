package screener

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowReader yields the underlying data in tiny reads to force pattern
// matches across read boundaries.
type slowReader struct {
	data []byte
	step int
}

func (r *slowReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.step
	if n > len(r.data) {
		n = len(r.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestHeuristicScreen(t *testing.T) {
	tests := []struct {
		name    string
		content string
		flagged bool
	}{
		{"clean text", "quarterly report, nothing to see", false},
		{"php eval", "<?php eval($_POST['x']); ?>", true},
		{"base64 decode", "x = base64_decode(payload)", true},
		{"script tag", "<html><script>alert(1)</script></html>", true},
		{"javascript uri", `<a href="javascript:void(0)">`, true},
		{"case sensitive", "EVAL(X) SYSTEM(Y)", false},
		{"empty", "", false},
	}

	h := NewHeuristic()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := h.Screen(context.Background(), strings.NewReader(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.flagged, verdict.Flagged)
		})
	}
}

func TestHeuristicScreenSplitAcrossReads(t *testing.T) {
	pad := bytes.Repeat([]byte("a"), scanBufSize-3)
	content := append(pad, []byte("shell_exec(whoami)")...)

	verdict, err := NewHeuristic().Screen(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)
	assert.True(t, verdict.Flagged)

	// Single-byte reads exercise the carry on every iteration.
	verdict, err = NewHeuristic().Screen(context.Background(), &slowReader{data: []byte("xx passthru(id) xx"), step: 1})
	require.NoError(t, err)
	assert.True(t, verdict.Flagged)
}

func TestHeuristicScreenLargeCleanStream(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789abcdef"), 16*1024)
	verdict, err := NewHeuristic().Screen(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)
	assert.False(t, verdict.Flagged)
}

func TestParseReply(t *testing.T) {
	verdict, err := parseReply("stream: OK\x00")
	require.NoError(t, err)
	assert.False(t, verdict.Flagged)

	verdict, err = parseReply("stream: Eicar-Signature FOUND\x00")
	require.NoError(t, err)
	assert.True(t, verdict.Flagged)
	assert.Equal(t, "Eicar-Signature", verdict.Reason)

	_, err = parseReply("INSTREAM size limit exceeded. ERROR\x00")
	require.Error(t, err)
}

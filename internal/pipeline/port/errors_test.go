package port

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"size exceeded", ErrSizeExceeded, true},
		{"unsupported type", ErrUnsupportedType, true},
		{"extension mismatch", ErrExtensionMismatch, true},
		{"malformed content", ErrMalformedContent, true},
		{"wrapped validation", fmt.Errorf("%w: missing PDF header", ErrMalformedContent), true},
		{"suspicious content", ErrSuspiciousContent, false},
		{"not found", ErrNotFound, false},
		{"expired", ErrExpired, false},
		{"write failure", ErrWriteFailure, false},
		{"unrelated", errors.New("disk on fire"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidationError(tt.err))
		})
	}
}

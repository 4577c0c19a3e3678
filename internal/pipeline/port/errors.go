package port

import "errors"

// Validation errors: the submission was rejected before screening.
var (
	ErrSizeExceeded      = errors.New("pipeline: file size exceeds configured maximum")
	ErrUnsupportedType   = errors.New("pipeline: file type is not supported")
	ErrExtensionMismatch = errors.New("pipeline: file extension does not match content type")
	ErrMalformedContent  = errors.New("pipeline: file content failed structural validation")
)

// Screening errors: the content screener flagged the upload. Always wrapped
// with the concrete reason, e.g. fmt.Errorf("%w: pattern %q", ErrSuspiciousContent, p).
var ErrSuspiciousContent = errors.New("pipeline: file contains suspicious content")

// Storage errors: read/write side of the lifecycle.
var (
	ErrNotFound          = errors.New("pipeline: file not found")
	ErrExpired           = errors.New("pipeline: file has expired and been destroyed")
	ErrDecryptionFailure = errors.New("pipeline: ciphertext failed authenticated decryption")
	ErrWriteFailure      = errors.New("pipeline: ciphertext write failed")
)

// IsValidationError reports whether err is one of the pre-screening
// rejection kinds.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrSizeExceeded) ||
		errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrExtensionMismatch) ||
		errors.Is(err, ErrMalformedContent)
}

// Package classify determines the authoritative MIME type of an upload from
// its leading bytes and validates it against the extension allow-list and
// per-format structural rules. All checks operate on a bounded prefix; the
// classifier never needs the full content.
package classify

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/flipfile/flipfile/internal/pipeline/port"
)

// PrefixSize is how many leading bytes callers should hand to Classify.
// Matches the largest window any signature or structural rule inspects.
const PrefixSize = 2048

// Supported MIME types.
const (
	MimePDF  = "application/pdf"
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeGIF  = "image/gif"
	MimeSVG  = "image/svg+xml"
	MimeDoc  = "application/msword"
	MimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeXls  = "application/vnd.ms-excel"
	MimeXlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimePpt  = "application/vnd.ms-powerpoint"
	MimePptx = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

// extensionMime is the exact extension -> MIME allow-list. An upload is
// accepted only when its detected MIME equals the entry for its extension.
var extensionMime = map[string]string{
	"pdf":  MimePDF,
	"jpg":  MimeJPEG,
	"jpeg": MimeJPEG,
	"png":  MimePNG,
	"gif":  MimeGIF,
	"svg":  MimeSVG,
	"doc":  MimeDoc,
	"docx": MimeDocx,
	"xls":  MimeXls,
	"xlsx": MimeXlsx,
	"ppt":  MimePpt,
	"pptx": MimePptx,
}

// Canonical magic signatures.
var (
	magicPDF   = []byte("%PDF")
	magicJPEG  = []byte{0xff, 0xd8}
	magicPNG   = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	magicGIF87 = []byte("GIF87a")
	magicGIF89 = []byte("GIF89a")
	magicZIP   = []byte{'P', 'K', 0x03, 0x04}
	magicOLE   = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}
	svgRoot    = []byte("<svg")
)

// PDF script markers whose presence makes an otherwise valid PDF a security
// violation rather than a malformed file.
var pdfScriptMarkers = [][]byte{
	[]byte("/JavaScript"),
	[]byte("/JS"),
}

// Classify inspects prefix (at most PrefixSize leading bytes of the upload)
// and returns the detected MIME type. It fails with ErrUnsupportedType when
// the detected type is outside the allow-list, ErrExtensionMismatch when the
// declared extension does not map to the detected type, ErrMalformedContent
// on structural violations, and ErrSuspiciousContent for embedded PDF script
// markers.
func Classify(prefix []byte, declaredName string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(declaredName), "."))

	mime, containerKnown := detectMime(prefix, ext)
	if mime == "" {
		if containerKnown {
			// Recognized office container, but the extension does not select
			// an allowed member of that family.
			return "", port.ErrExtensionMismatch
		}
		return "", port.ErrUnsupportedType
	}

	if extensionMime[ext] != mime {
		return "", port.ErrExtensionMismatch
	}

	if mime == MimePDF {
		if err := validatePDF(prefix); err != nil {
			return "", err
		}
	}

	return mime, nil
}

// detectMime resolves the MIME type from magic bytes. Office containers (ZIP,
// OLE) are ambiguous on bytes alone, so the extension selects the concrete
// member; containerKnown is true when a container matched but the extension
// selected nothing valid.
func detectMime(prefix []byte, ext string) (mime string, containerKnown bool) {
	switch {
	case bytes.HasPrefix(prefix, magicPDF):
		return MimePDF, false
	case bytes.HasPrefix(prefix, magicJPEG):
		return MimeJPEG, false
	case bytes.HasPrefix(prefix, magicPNG):
		return MimePNG, false
	case bytes.HasPrefix(prefix, magicGIF87), bytes.HasPrefix(prefix, magicGIF89):
		return MimeGIF, false
	case hasSVGRoot(prefix):
		return MimeSVG, false
	case bytes.HasPrefix(prefix, magicZIP):
		return officeMember(ext, true), true
	case bytes.HasPrefix(prefix, magicOLE):
		return officeMember(ext, false), true
	default:
		return "", false
	}
}

// hasSVGRoot reports whether an <svg> root element opens within the first 100
// bytes.
func hasSVGRoot(prefix []byte) bool {
	window := prefix
	if len(window) > 100 {
		window = window[:100]
	}
	return bytes.Contains(window, svgRoot)
}

// officeMember maps an extension to its office MIME, constrained to the
// container family actually observed (ZIP for OOXML, OLE for legacy).
func officeMember(ext string, zipContainer bool) string {
	mime := extensionMime[ext]
	switch mime {
	case MimeDocx, MimeXlsx, MimePptx:
		if zipContainer {
			return mime
		}
	case MimeDoc, MimeXls, MimePpt:
		if !zipContainer {
			return mime
		}
	}
	return ""
}

// validatePDF enforces the structural rules for PDF uploads: the literal
// header marker, and no embedded script markers.
func validatePDF(prefix []byte) error {
	if !bytes.HasPrefix(prefix, magicPDF) {
		return fmt.Errorf("%w: missing PDF header", port.ErrMalformedContent)
	}
	for _, marker := range pdfScriptMarkers {
		if bytes.Contains(prefix, marker) {
			return fmt.Errorf("%w: PDF embeds %s", port.ErrSuspiciousContent, marker)
		}
	}
	return nil
}

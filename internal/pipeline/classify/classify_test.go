package classify

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipfile/flipfile/internal/pipeline/port"
)

var (
	pngPrefix = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte{0}, 32)...)
	zipPrefix = append([]byte{'P', 'K', 0x03, 0x04}, bytes.Repeat([]byte{0}, 32)...)
	olePrefix = append([]byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}, bytes.Repeat([]byte{0}, 32)...)
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		prefix   []byte
		fileName string
		wantMime string
		wantErr  error
	}{
		{"pdf", []byte("%PDF-1.7\n1 0 obj"), "doc.pdf", MimePDF, nil},
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0}, "photo.jpg", MimeJPEG, nil},
		{"jpeg alt ext", []byte{0xff, 0xd8, 0xff, 0xe1}, "photo.JPEG", MimeJPEG, nil},
		{"png", pngPrefix, "img.png", MimePNG, nil},
		{"gif87", []byte("GIF87a...."), "anim.gif", MimeGIF, nil},
		{"gif89", []byte("GIF89a...."), "anim.gif", MimeGIF, nil},
		{"svg", []byte(`<svg xmlns="http://www.w3.org/2000/svg">`), "icon.svg", MimeSVG, nil},
		{"svg with xml decl", []byte(`<?xml version="1.0"?><svg>`), "icon.svg", MimeSVG, nil},
		{"docx", zipPrefix, "memo.docx", MimeDocx, nil},
		{"xlsx", zipPrefix, "sheet.xlsx", MimeXlsx, nil},
		{"pptx", zipPrefix, "deck.pptx", MimePptx, nil},
		{"legacy doc", olePrefix, "memo.doc", MimeDoc, nil},
		{"legacy xls", olePrefix, "sheet.xls", MimeXls, nil},
		{"legacy ppt", olePrefix, "deck.ppt", MimePpt, nil},

		{"unknown bytes", []byte("hello world"), "notes.txt", "", port.ErrUnsupportedType},
		{"empty content", nil, "empty.pdf", "", port.ErrUnsupportedType},
		{"elf binary", []byte{0x7f, 'E', 'L', 'F'}, "tool.pdf", "", port.ErrUnsupportedType},

		{"png named pdf", pngPrefix, "img.pdf", "", port.ErrExtensionMismatch},
		{"pdf named jpg", []byte("%PDF-1.7"), "doc.jpg", "", port.ErrExtensionMismatch},
		{"no extension", []byte("%PDF-1.7"), "document", "", port.ErrExtensionMismatch},
		{"docx bytes legacy ext", zipPrefix, "memo.doc", "", port.ErrExtensionMismatch},
		{"ole bytes modern ext", olePrefix, "memo.docx", "", port.ErrExtensionMismatch},
		{"zip named jpg", zipPrefix, "x.jpg", "", port.ErrExtensionMismatch},

		{"pdf with javascript", []byte("%PDF-1.7 /JavaScript (app.alert)"), "doc.pdf", "", port.ErrSuspiciousContent},
		{"pdf with js action", []byte("%PDF-1.7 <</S /JS>>"), "doc.pdf", "", port.ErrSuspiciousContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, err := Classify(tt.prefix, tt.fileName)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMime, mime)
		})
	}
}

func TestHasSVGRootWindow(t *testing.T) {
	// The root element must open near the top; matching deep into the
	// content would let any file smuggle an SVG tag.
	late := append(bytes.Repeat([]byte{' '}, 200), []byte("<svg>")...)
	_, err := Classify(late, "icon.svg")
	require.ErrorIs(t, err, port.ErrUnsupportedType)
}

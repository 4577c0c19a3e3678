// Package vault implements the chunk-framed authenticated encryption
// container for blobs at rest.
//
// Container layout (version 1):
//
//	magic "FFV1" (4 bytes)
//	chunk size  (uint32 big-endian, plaintext bytes per chunk)
//	frames:     [payload length uint32 BE][12-byte nonce][ciphertext+tag]
//
// Each chunk is sealed with AES-256-GCM under a per-file subkey derived with
// HKDF-SHA256(master, salt=file ID, info="flipfile/v1"). The AAD binds the
// file ID, the chunk index, and a final-chunk flag, so reordering, cross-file
// splicing, and frame-boundary truncation all fail authentication instead of
// yielding corrupt plaintext. The vault never generates or persists key
// material; the master key is supplied by the caller on construction.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the required master key length in bytes (AES-256).
	KeySize = 32

	// NonceSize is the per-frame GCM nonce length.
	NonceSize = 12

	// DefaultChunkSize is the plaintext bytes sealed per frame.
	DefaultChunkSize = 64 * 1024

	// MaxChunkSize caps the chunk size a reader will honor from a container
	// header, bounding the allocation an untrusted blob can demand.
	MaxChunkSize = 4 * 1024 * 1024

	hkdfInfo = "flipfile/v1"
)

var containerMagic = []byte("FFV1")

var (
	// ErrInvalidKey indicates the master key is not exactly KeySize bytes.
	ErrInvalidKey = errors.New("vault: master key must be 32 bytes")

	// ErrInvalidChunkSize indicates a non-positive or oversized chunk size.
	ErrInvalidChunkSize = errors.New("vault: invalid chunk size")

	// ErrBadContainer indicates the blob does not start with a known
	// container header.
	ErrBadContainer = errors.New("vault: unrecognized container format")

	// ErrDecryptFailed indicates ciphertext that cannot be authentically
	// decrypted: tampering, truncation, reordering, or a wrong key.
	ErrDecryptFailed = errors.New("vault: authenticated decryption failed")
)

// Vault seals and opens chunk-framed encrypted streams under one master key.
type Vault struct {
	master    []byte
	chunkSize int
}

// New creates a vault. chunkSize <= 0 selects DefaultChunkSize.
func New(masterKey []byte, chunkSize int) (*Vault, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidKey
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("%w: %d exceeds maximum %d", ErrInvalidChunkSize, chunkSize, MaxChunkSize)
	}

	key := make([]byte, KeySize)
	copy(key, masterKey)

	return &Vault{master: key, chunkSize: chunkSize}, nil
}

// SealWrite encrypts the plaintext stream r into the container written to w,
// returning the number of plaintext bytes consumed. Writes are chunked; at
// most one chunk of plaintext is resident at a time.
func (v *Vault) SealWrite(fileID string, r io.Reader, w io.Writer) (int64, error) {
	aead, err := v.newAEAD(fileID)
	if err != nil {
		return 0, err
	}

	if err := writeHeader(w, v.chunkSize); err != nil {
		return 0, err
	}

	var (
		total   int64
		index   uint64
		current = make([]byte, v.chunkSize)
		next    = make([]byte, v.chunkSize)
	)

	// One-chunk read-ahead so the final frame can be marked in its AAD.
	curN, err := readChunk(r, current)
	if err != nil {
		return 0, err
	}

	for {
		nextN, err := readChunk(r, next)
		if err != nil {
			return total, err
		}
		final := nextN == 0

		if err := sealFrame(w, aead, fileID, index, final, current[:curN]); err != nil {
			return total, err
		}
		total += int64(curN)
		index++

		if final {
			return total, nil
		}
		current, next = next, current
		curN = nextN
	}
}

// OpenRead decrypts the container read from r and streams plaintext to w,
// returning the number of plaintext bytes produced. Any integrity violation
// surfaces as ErrDecryptFailed.
func (v *Vault) OpenRead(fileID string, r io.Reader, w io.Writer) (int64, error) {
	aead, err := v.newAEAD(fileID)
	if err != nil {
		return 0, err
	}

	chunkSize, err := readHeader(r)
	if err != nil {
		return 0, err
	}
	maxFrame := NonceSize + chunkSize + aead.Overhead()

	var (
		total int64
		index uint64
	)

	// Same one-frame read-ahead as the writer: the final frame is only known
	// once the stream ends, and its AAD differs.
	current, err := readFrame(r, maxFrame)
	if err != nil {
		return 0, err
	}
	if current == nil {
		return 0, fmt.Errorf("%w: container has no frames", ErrDecryptFailed)
	}

	for {
		next, err := readFrame(r, maxFrame)
		if err != nil {
			return total, err
		}
		final := next == nil

		plaintext, err := openFrame(aead, fileID, index, final, current)
		if err != nil {
			return total, err
		}
		if _, err := w.Write(plaintext); err != nil {
			return total, err
		}
		total += int64(len(plaintext))
		index++

		if final {
			return total, nil
		}
		current = next
	}
}

// newAEAD derives the per-file subkey and builds the AES-256-GCM cipher.
func (v *Vault) newAEAD(fileID string) (cipher.AEAD, error) {
	subkey := make([]byte, KeySize)
	kdf := hkdf.New(sha256.New, v.master, []byte(fileID), []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, subkey); err != nil {
		return nil, fmt.Errorf("vault: key derivation failed: %w", err)
	}

	block, err := aes.NewCipher(subkey)
	if err != nil {
		return nil, fmt.Errorf("vault: cipher creation failed: %w", err)
	}
	return cipher.NewGCM(block)
}

// frameAAD binds a frame to its file, position, and final-chunk status.
func frameAAD(fileID string, index uint64, final bool) []byte {
	aad := make([]byte, 0, len(fileID)+9)
	aad = append(aad, fileID...)
	aad = binary.BigEndian.AppendUint64(aad, index)
	if final {
		aad = append(aad, 1)
	} else {
		aad = append(aad, 0)
	}
	return aad
}

// sealFrame encrypts one plaintext chunk and writes the framed record.
func sealFrame(w io.Writer, aead cipher.AEAD, fileID string, index uint64, final bool, plaintext []byte) error {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("vault: nonce generation failed: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, frameAAD(fileID, index, final))

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(NonceSize+len(ciphertext)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(nonce); err != nil {
		return err
	}
	_, err := w.Write(ciphertext)
	return err
}

// openFrame authenticates and decrypts one framed record.
func openFrame(aead cipher.AEAD, fileID string, index uint64, final bool, frame []byte) ([]byte, error) {
	if len(frame) < NonceSize+aead.Overhead() {
		return nil, fmt.Errorf("%w: frame too short", ErrDecryptFailed)
	}
	nonce, ciphertext := frame[:NonceSize], frame[NonceSize:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, frameAAD(fileID, index, final))
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %d", ErrDecryptFailed, index)
	}
	return plaintext, nil
}

// writeHeader emits the container magic and chunk size.
func writeHeader(w io.Writer, chunkSize int) error {
	if _, err := w.Write(containerMagic); err != nil {
		return err
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(chunkSize))
	_, err := w.Write(buf[:])
	return err
}

// readHeader validates the container magic and returns the chunk size.
func readHeader(r io.Reader) (int, error) {
	header := make([]byte, len(containerMagic)+4)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, fmt.Errorf("%w: missing header", ErrBadContainer)
	}
	for i, b := range containerMagic {
		if header[i] != b {
			return 0, ErrBadContainer
		}
	}

	chunkSize := int(binary.BigEndian.Uint32(header[len(containerMagic):]))
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		return 0, fmt.Errorf("%w: chunk size %d", ErrInvalidChunkSize, chunkSize)
	}
	return chunkSize, nil
}

// readChunk fills buf as far as the stream allows, returning 0 at EOF.
func readChunk(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return n, nil
	}
	if err != nil {
		return n, fmt.Errorf("vault: read failed: %w", err)
	}
	return n, nil
}

// readFrame reads one length-prefixed frame, returning nil at clean EOF.
// Short or oversized frames are integrity violations.
func readFrame(r io.Reader, maxFrame int) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: truncated frame header", ErrDecryptFailed)
	}

	frameLen := int(binary.BigEndian.Uint32(lenBuf[:]))
	if frameLen <= 0 || frameLen > maxFrame {
		return nil, fmt.Errorf("%w: frame length %d out of bounds", ErrDecryptFailed, frameLen)
	}

	frame := make([]byte, frameLen)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, fmt.Errorf("%w: truncated frame", ErrDecryptFailed)
	}
	return frame, nil
}

package domain

import "time"

// ScanStatus is the terminal verdict of the threat screener for a stored file.
// Flagged uploads are rejected before a record exists, so persisted records
// are always clean; Flagged only ever appears on in-flight verdicts.
type ScanStatus string

const (
	ScanClean   ScanStatus = "clean"
	ScanFlagged ScanStatus = "flagged"
)

// FileRecord is the immutable metadata for one accepted upload. It is created
// atomically after the ciphertext blob is fully written and is never updated,
// only destroyed.
type FileRecord struct {
	ID             string     `json:"id"`
	OriginalName   string     `json:"original_name"`
	SecureName     string     `json:"secure_name"`
	MimeType       string     `json:"mime_type"`
	SizeBytes      int64      `json:"size_bytes"`
	ContentHash    string     `json:"content_hash"`
	UploadedAt     time.Time  `json:"uploaded_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	OwnerID        string     `json:"owner_id,omitempty"`
	StorageLocator string     `json:"storage_locator"`
	ScanStatus     ScanStatus `json:"scan_status"`
}

// Expired reports whether the record's retention lease has lapsed at now.
func (r *FileRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

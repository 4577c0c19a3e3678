// Package kvstore provides MetadataStore implementations backed by an
// in-memory map, Redis, or a local bbolt database. All backends persist
// records as JSON so the stored form matches the API representation.
package kvstore

import (
	"encoding/json"
	"fmt"

	"github.com/flipfile/flipfile/internal/pipeline/domain"
)

// encodeRecord serializes a file record for storage.
func encodeRecord(rec *domain.FileRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("kvstore: encode record: %w", err)
	}
	return data, nil
}

// decodeRecord deserializes a stored file record.
func decodeRecord(data []byte) (*domain.FileRecord, error) {
	var rec domain.FileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("kvstore: decode record: %w", err)
	}
	return &rec, nil
}

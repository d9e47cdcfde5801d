package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusQueued     DocumentStatus = "queued"
	StatusProcessing DocumentStatus = "processing"
	StatusSucceeded  DocumentStatus = "succeeded"
	StatusFailed     DocumentStatus = "failed"
	StatusCorrected  DocumentStatus = "corrected"
)

type DocumentCategory string

const (
	CategorySales     DocumentCategory = "sales"
	CategoryPurchases DocumentCategory = "purchases"
	CategoryOther     DocumentCategory = "other"
)

type Document struct {
	ID          string           `json:"id"`
	Fingerprint string           `json:"fingerprint"`
	Filename    string           `json:"filename"`
	MediaType   string           `json:"media_type"`
	Category    DocumentCategory `json:"category"`
	StoragePath string           `json:"storage_path"`
	Status      DocumentStatus   `json:"status"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Fingerprint hashes document bytes together with the declared media type and
// category, so identical bytes uploaded under a different category extract again.
func Fingerprint(payload []byte, mediaType string, category DocumentCategory) string {
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte{0})
	h.Write([]byte(mediaType))
	h.Write([]byte{0})
	h.Write([]byte(category))
	return hex.EncodeToString(h.Sum(nil))
}

// CanTransition enforces the document lifecycle. The only route back from a
// terminal state is a forced re-extraction, expressed as terminal -> queued.
func CanTransition(from, to DocumentStatus) bool {
	switch from {
	case StatusUploaded:
		return to == StatusQueued
	case StatusQueued:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusSucceeded || to == StatusFailed
	case StatusSucceeded:
		return to == StatusCorrected || to == StatusQueued
	case StatusFailed, StatusCorrected:
		return to == StatusQueued
	default:
		return false
	}
}

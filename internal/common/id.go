package common

import (
	"crypto/sha512"
	"encoding/hex"

	"github.com/google/uuid"
)

// jobIDLength keeps ids well under attribute-store key limits while
// leaving no realistic collision chance.
const jobIDLength = 50

// NewJobID derives a job id from the job's identifying fields plus a
// random salt, so resubmitting the same source/dest pair yields a fresh
// job rather than silently overwriting the old record.
func NewJobID(sourcePath, destPath, optionsJSON string) string {
	h := sha512.New()
	h.Write([]byte(sourcePath))
	h.Write([]byte(destPath))
	h.Write([]byte(optionsJSON))
	h.Write([]byte(uuid.New().String()))
	return hex.EncodeToString(h.Sum(nil))[:jobIDLength]
}

// NewMessageID generates a unique queue message id
func NewMessageID() string {
	return uuid.New().String()
}

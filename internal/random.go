package internal

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const recoveryTokenSize = 32

// NewUUIDCode returns a random (version 4) UUID string.
func NewUUIDCode() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewULIDCode returns a ULID for t with entropy from crypto/rand, so codes
// sort by issue time.
func NewULIDCode(t time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(t), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewTokenCode returns 32 random bytes encoded as unpadded base64url.
func NewTokenCode() (string, error) {
	var raw [recoveryTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

var ErrInvalidHash = errors.New("invalid hash format")

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams are tuned for interactive login.
var DefaultParams = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// PinHasher hashes and verifies account PINs with argon2id.
type PinHasher struct {
	params Argon2Params
}

func NewPinHasher(params Argon2Params) *PinHasher {
	return &PinHasher{params: params}
}

// HashPin returns the base64 hash and salt for a PIN.
func (h *PinHasher) HashPin(pin string) (hash, salt string, err error) {
	saltBytes := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(pin),
		saltBytes,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return base64.RawURLEncoding.EncodeToString(key),
		base64.RawURLEncoding.EncodeToString(saltBytes),
		nil
}

// VerifyPin recomputes the hash in constant time.
func (h *PinHasher) VerifyPin(pin, hash, salt string) (bool, error) {
	saltBytes, err := base64.RawURLEncoding.DecodeString(salt)
	if err != nil {
		return false, ErrInvalidHash
	}
	expected, err := base64.RawURLEncoding.DecodeString(hash)
	if err != nil {
		return false, ErrInvalidHash
	}

	computed := argon2.IDKey(
		[]byte(pin),
		saltBytes,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		uint32(len(expected)),
	)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

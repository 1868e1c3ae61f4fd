package basic

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Password verification errors.
var (
	ErrPasswordMismatch  = errors.New("password mismatch")
	ErrUnsupportedHash   = errors.New("unsupported password hash format")
	errMalformedArgon2id = errors.New("invalid argon2id hash format")
)

// HashPassword returns a bcrypt hash of password at the given cost. A cost
// of zero selects bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyPassword checks password against a stored bcrypt or Argon2id hash.
func VerifyPassword(stored, password string) error {
	switch {
	case strings.HasPrefix(stored, "$argon2id$"):
		return compareArgon2id(stored, password)
	case isBcrypt(stored):
		if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)); err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return ErrPasswordMismatch
			}
			return err
		}
		return nil
	default:
		return ErrUnsupportedHash
	}
}

// CheckHash reports whether stored is a well-formed bcrypt or Argon2id hash.
func CheckHash(stored string) error {
	switch {
	case strings.HasPrefix(stored, "$argon2id$"):
		_, err := parseArgon2id(stored)
		return err
	case isBcrypt(stored):
		_, err := bcrypt.Cost([]byte(stored))
		return err
	default:
		return ErrUnsupportedHash
	}
}

func isBcrypt(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$")
}

type argon2idHash struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	hash    []byte
}

// parseArgon2id decodes a hash of the form
// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>.
func parseArgon2id(encoded string) (*argon2idHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, errMalformedArgon2id
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedArgon2id, err)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	var m, t, p uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedArgon2id, err)
	}
	// argon2.IDKey panics outside these bounds.
	if p == 0 || p > 255 || t < 1 || m < 8*p {
		return nil, fmt.Errorf("%w: m=%d,t=%d,p=%d", errMalformedArgon2id, m, t, p)
	}

	salt, err := decodeBase64(parts[4])
	if err != nil {
		return nil, fmt.Errorf("%w: salt: %w", errMalformedArgon2id, err)
	}
	hash, err := decodeBase64(parts[5])
	if err != nil {
		return nil, fmt.Errorf("%w: hash: %w", errMalformedArgon2id, err)
	}
	if len(hash) == 0 {
		return nil, fmt.Errorf("%w: empty hash", errMalformedArgon2id)
	}

	return &argon2idHash{memory: m, time: t, threads: uint8(p), salt: salt, hash: hash}, nil
}

func compareArgon2id(encoded, password string) error {
	h, err := parseArgon2id(encoded)
	if err != nil {
		return err
	}
	derived := argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.threads, uint32(len(h.hash)))
	if subtle.ConstantTimeCompare(derived, h.hash) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

func decodeBase64(s string) ([]byte, error) {
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

package db

import (
	"crypto/rand"
	"encoding/hex"

	"threads/internal/constants"
)

func GenerateID(prefix string) (string, error) {
	b := make([]byte, constants.IDRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}

// IsValidID reports whether id has the given prefix followed by lowercase hex of the expected length.
func IsValidID(prefix, id string) bool {
	if len(id) != len(prefix)+1+constants.IDRandomBytes*2 || id[:len(prefix)+1] != prefix+"_" {
		return false
	}

	for _, r := range id[len(prefix)+1:] {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}

	return true
}

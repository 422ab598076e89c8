package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Passwords hashes and checks passwords at one bcrypt cost. Checks for
// unknown users run against a dummy hash of the same cost, so a miss takes as
// long as a wrong password.
type Passwords struct {
	cost  int
	dummy []byte
}

func NewPasswords(cost int) (*Passwords, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("threads-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("generating dummy hash: %w", err)
	}
	return &Passwords{cost: cost, dummy: dummy}, nil
}

func (p *Passwords) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// Check reports whether password matches hash. An empty hash means no such
// user and is checked against the dummy.
func (p *Passwords) Check(hash, password string) (bool, error) {
	h := []byte(hash)
	if hash == "" {
		h = p.dummy
	}

	err := bcrypt.CompareHashAndPassword(h, []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("comparing password: %w", err)
	}
	return hash != "", nil
}

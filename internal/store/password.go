package store

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordMismatch is returned by VerifyPassword when the password does not match.
var ErrPasswordMismatch = errors.New("password mismatch")

// hashPassword returns the value to persist for a user password. Values that already are
// bcrypt hashes are kept as they are.
func (s *Store) hashPassword(plain string) (string, error) {
	if plain == "" {
		return "", invalid("password is empty")
	}
	if !s.opts.HashPasswords || isHashed(plain) {
		return plain, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), s.opts.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", invalid("password is longer than 72 bytes")
		}
		return "", err
	}
	return string(hash), nil
}

func isHashed(v string) bool {
	_, err := bcrypt.Cost([]byte(v))
	return err == nil
}

// checkPassword compares a stored password with a candidate.
func checkPassword(stored, plain string) error {
	if isHashed(stored) {
		if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)); err != nil {
			return ErrPasswordMismatch
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(plain)) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

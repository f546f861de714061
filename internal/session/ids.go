package session

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

// CodeLength is the number of characters in a session code.
const CodeLength = 6

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

var codeAlphabetSize = big.NewInt(int64(len(codeAlphabet)))

// NewCode returns a random session code of CodeLength characters drawn from
// [0-9A-Z].
//
// Codes are not checked against live sessions: a collision makes
// Sessions.Create overwrite the older session.
func NewCode() (string, error) {
	var buf [CodeLength]byte
	for i := range buf {
		n, err := rand.Int(rand.Reader, codeAlphabetSize)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf[:]), nil
}

// IsCode reports whether s has the shape of a session code.
func IsCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// NewClientID returns a random (version 4) UUID string used to identify a
// connection for its whole lifetime.
func NewClientID() string {
	return uuid.NewString()
}

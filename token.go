package lnurlbridge

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenLen is the number of random bytes in a challenge token.
const tokenLen = 32

// Token is a single-use challenge (the LNURL k1).
type Token string

// NewToken returns 32 random bytes, hex encoded. All flows use it.
func NewToken() (Token, error) {
	var b [tokenLen]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}

	return Token(hex.EncodeToString(b[:])), nil
}

// TokenStore tracks which tokens are outstanding.
type TokenStore interface {
	// Issue creates and records a token that is not outstanding yet.
	Issue(ctx context.Context) (Token, error)

	// Consume removes the token and reports whether it was outstanding.
	// For a given token at most one call ever returns true.
	Consume(ctx context.Context, token Token) (bool, error)
}

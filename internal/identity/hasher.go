// Package identity derives anonymous authorship markers and display aliases
// from posting tokens. Nothing here can map a hash back to a token or user.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/model"
)

// Hash returns the lowercase hex SHA-256 of the secret's UTF-8 bytes.
// An empty secret is rejected: its digest would be a shared identity for every
// caller without a token.
func Hash(secret string) (model.TokenHash, error) {
	if secret == "" {
		return "", fmt.Errorf("hash: empty secret: %w", errs.ErrInvalidInput)
	}
	sum := sha256.Sum256([]byte(secret))
	return model.TokenHash(hex.EncodeToString(sum[:])), nil
}

// HashToken hashes tok.Secret.
func HashToken(tok model.PostingToken) (model.TokenHash, error) {
	return Hash(tok.Secret)
}

// IsHash reports whether s looks like a TokenHash (64 lowercase hex chars).
func IsHash(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

package checkout

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// OwnerHasher derives a session owner from a bearer token. Tokens are never
// stored, only their HMAC-SHA256 under a server pepper.
type OwnerHasher struct {
	pepper []byte
}

// NewOwnerHasher creates an OwnerHasher with the given pepper.
func NewOwnerHasher(pepper []byte) *OwnerHasher {
	return &OwnerHasher{pepper: pepper}
}

// Hash returns the hex HMAC of token.
func (h *OwnerHasher) Hash(token string) string {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

type ownerKey struct{}

// WithOwner returns a context carrying the caller's owner hash.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the owner hash set by WithOwner, or "".
func OwnerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// sameOwner compares owner hashes in constant time. An empty owner never
// matches.
func sameOwner(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

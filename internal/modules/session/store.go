package session

import (
	"time"

	"storefront/internal/pkg/token"
)

// Storage keys. Fixed strings, values JSON-encoded.
const (
	keyToken        = "token"
	keyRefreshToken = "refreshToken"
	keyUser         = "user"
)

// CredentialStore persists the token pair and the last-known identity.
// It is pure key/value persistence plus expiry inspection; it never talks
// to the network.
type CredentialStore struct {
	kv KV
}

func NewCredentialStore(kv KV) *CredentialStore {
	return &CredentialStore{kv: kv}
}

func (c *CredentialStore) AccessToken() string {
	var t string
	if err := c.kv.Get(keyToken, &t); err != nil {
		return ""
	}
	return t
}

func (c *CredentialStore) RefreshToken() string {
	var t string
	if err := c.kv.Get(keyRefreshToken, &t); err != nil {
		return ""
	}
	return t
}

func (c *CredentialStore) SaveTokens(access, refresh string) error {
	if err := c.kv.Set(keyToken, access); err != nil {
		return err
	}
	return c.kv.Set(keyRefreshToken, refresh)
}

func (c *CredentialStore) SaveIdentity(id Identity) error {
	return c.kv.Set(keyUser, id)
}

func (c *CredentialStore) Identity() (Identity, bool) {
	var id Identity
	if err := c.kv.Get(keyUser, &id); err != nil {
		return Identity{}, false
	}
	return id, true
}

// Clear removes all three token-bearing keys.
func (c *CredentialStore) Clear() error {
	var first error
	for _, key := range []string{keyToken, keyRefreshToken, keyUser} {
		if err := c.kv.Delete(key); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// TokenExpired reports whether the stored access token is missing, expired
// or undecodable. Expiry is evaluated lazily here, not by a background poll.
func (c *CredentialStore) TokenExpired(now time.Time) bool {
	access := c.AccessToken()
	if access == "" {
		return true
	}
	claims, err := token.Decode(access)
	if err != nil {
		return true
	}
	return claims.Expired(now)
}

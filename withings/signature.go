package withings

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// Signer computes the provider's request signature. The provider
// validates the digest byte-for-byte, so the canonicalization below
// must not change: sort the field names, join the corresponding
// values (not the names) with a comma, HMAC-SHA256 with the client
// secret, lowercase hex.
type Signer struct {
	secret string
}

// NewSigner creates a Signer for the given client secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex HMAC-SHA256 digest over the canonicalized
// parameter set. Only the fields relevant to the action being signed
// belong in params; extra request fields such as code or redirect_uri
// are never part of the signature.
func (s *Signer) Sign(params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	slices.Sort(names)

	values := make([]string, len(names))
	for i, name := range names {
		values[i] = params[name]
	}

	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write([]byte(strings.Join(values, ",")))

	return hex.EncodeToString(mac.Sum(nil))
}

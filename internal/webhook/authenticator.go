// Package webhook authenticates inbound gateway notifications before any
// parsing happens.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"checkout-core/internal/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "Fastpay-Signature"

type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Authenticate verifies the signature over the exact raw bytes and only then
// parses the payload. The signature is never computed over a re-serialized
// structure; re-serialization is not byte-stable.
func (a *Authenticator) Authenticate(raw []byte, signature string) (domain.Event, error) {
	if err := a.verify(raw, signature); err != nil {
		return domain.Event{}, err
	}
	return domain.ParseEvent(raw)
}

func (a *Authenticator) verify(raw []byte, signature string) error {
	if signature == "" {
		return fmt.Errorf("%w: missing signature header", domain.ErrBadSignature)
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", domain.ErrBadSignature)
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write(raw)

	if !hmac.Equal(provided, mac.Sum(nil)) {
		return domain.ErrBadSignature
	}
	return nil
}

// Sign computes the signature a genuine gateway delivery would carry. Used
// by tests and the local mock.
func (a *Authenticator) Sign(raw []byte) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}

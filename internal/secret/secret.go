// Package secret implements the opaque capability-token primitive. One token
// kind backs api-key issuance, password reset and email confirmation; the
// flows are distinguished solely by the action tag inside the payload, and
// every consumer must validate the tag before trusting the payload shape.
package secret

import (
	"crypto/rand"
	"encoding/json"
	"time"
)

// KeyLength is the fixed length of token keys. A 62-symbol alphabet gives
// just under 6 bits of entropy per character, far beyond the 128-bit floor.
const KeyLength = 200

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Payload action tags.
const (
	ActionAPIKey            = "api_key"
	ActionPasswordReset     = "password_reset"
	ActionEmailConfirmation = "email_confirmation"
)

// Payload field names.
const (
	PayloadAction = "action"
	PayloadUserID = "userId"
)

// Token is an opaque, expiring, payload-carrying credential. It is valid iff
// !Used && now < Expiration; it dies by expiry or consumption and is never
// otherwise mutated.
type Token struct {
	Key        string
	Info       string
	Expiration time.Time
	Used       bool
}

// Payload decodes the token's tagged payload. Malformed payloads fail closed:
// the result is nil, never an error to the caller.
func (t *Token) Payload() map[string]any {
	if t == nil {
		return nil
	}
	var info map[string]any
	if err := json.Unmarshal([]byte(t.Info), &info); err != nil {
		return nil
	}
	return info
}

// UserPayload builds the payload carried by account-scoped tokens.
func UserPayload(action string, userID int) map[string]any {
	return map[string]any{
		PayloadAction: action,
		PayloadUserID: userID,
	}
}

// MakeKey generates a random key from the printable alphanumeric alphabet.
func MakeKey() (string, error) {
	// Rejection sampling keeps the 62-symbol distribution uniform.
	const limit = byte(len(keyAlphabet) * (256 / len(keyAlphabet)))
	out := make([]byte, 0, KeyLength)
	buf := make([]byte, KeyLength)
	for len(out) < KeyLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, keyAlphabet[int(b)%len(keyAlphabet)])
			if len(out) == KeyLength {
				break
			}
		}
	}
	return string(out), nil
}

package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureStatus is the result of webhook signature verification.
type SignatureStatus int

const (
	SignatureValid SignatureStatus = iota
	SignatureInvalid
	SignatureSkipped
)

// VerifySignature checks the x-byl-signature header: a hex HMAC-SHA256 over
// the exact raw bytes received, keyed by the shared webhook secret. When no
// secret is configured or no header was sent, verification is skipped, not
// failed; callers must log that condition as security-relevant and may still
// process the event.
func VerifySignature(payload []byte, signatureHeader, webhookSecret string) SignatureStatus {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return SignatureSkipped
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return SignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if hmac.Equal(mac.Sum(nil), decodedSig) {
		return SignatureValid
	}
	return SignatureInvalid
}

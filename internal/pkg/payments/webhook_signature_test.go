package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"testing"
)

func signFor(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureValid(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.completed"}`)
	secret := "top-secret"

	if got := VerifySignature(payload, signFor(payload, secret), secret); got != SignatureValid {
		t.Fatalf("expected valid signature, got %v", got)
	}

	// Header casing must not matter; the digest is hex either way.
	upper := []byte(signFor(payload, secret))
	for i, b := range upper {
		if b >= 'a' && b <= 'f' {
			upper[i] = b - 32
		}
	}
	if got := VerifySignature(payload, string(upper), secret); got != SignatureValid {
		t.Fatalf("expected uppercase hex signature to validate, got %v", got)
	}
}

func TestVerifySignatureRejectsTampering(t *testing.T) {
	payload := []byte(`{"id":"evt_1","amount_total":69000}`)
	secret := "top-secret"
	sig := signFor(payload, secret)

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-2] = '1'
	if got := VerifySignature(tampered, sig, secret); got != SignatureInvalid {
		t.Fatalf("expected modified payload to fail, got %v", got)
	}

	if got := VerifySignature(payload, signFor(payload, "other-secret"), secret); got != SignatureInvalid {
		t.Fatalf("expected wrong-key signature to fail, got %v", got)
	}
	if got := VerifySignature(payload, "not-hex!", secret); got != SignatureInvalid {
		t.Fatalf("expected undecodable signature to fail, got %v", got)
	}
	if got := VerifySignature(payload, "deadbeef", secret); got != SignatureInvalid {
		t.Fatalf("expected truncated signature to fail, got %v", got)
	}
}

func TestVerifySignatureRandomPayloads(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		payload := make([]byte, 1+rng.Intn(512))
		rng.Read(payload)
		secretBytes := make([]byte, 8+rng.Intn(32))
		rng.Read(secretBytes)
		secret := hex.EncodeToString(secretBytes)

		sig := signFor(payload, secret)
		if got := VerifySignature(payload, sig, secret); got != SignatureValid {
			t.Fatalf("iteration %d: valid signature rejected", i)
		}

		// Flip one bit of the payload.
		flipped := append([]byte(nil), payload...)
		flipped[rng.Intn(len(flipped))] ^= 1 << uint(rng.Intn(8))
		if got := VerifySignature(flipped, sig, secret); got != SignatureInvalid {
			t.Fatalf("iteration %d: bit-flipped payload accepted", i)
		}

		// Flip one hex digit of the signature.
		badSig := []byte(sig)
		pos := rng.Intn(len(badSig))
		if badSig[pos] == '0' {
			badSig[pos] = '1'
		} else {
			badSig[pos] = '0'
		}
		if got := VerifySignature(payload, string(badSig), secret); got != SignatureInvalid {
			t.Fatalf("iteration %d: mutated signature accepted", i)
		}
	}
}

func TestVerifySignatureSkippedModes(t *testing.T) {
	payload := []byte(`{}`)

	if got := VerifySignature(payload, "", "top-secret"); got != SignatureSkipped {
		t.Fatalf("missing header should skip, got %v", got)
	}
	if got := VerifySignature(payload, signFor(payload, "top-secret"), ""); got != SignatureSkipped {
		t.Fatalf("missing secret should skip, got %v", got)
	}
	if got := VerifySignature(payload, "  ", "  "); got != SignatureSkipped {
		t.Fatalf("blank header and secret should skip, got %v", got)
	}
}

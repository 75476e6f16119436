package codehost

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// VerifySignature checks a GitHub webhook's X-Hub-Signature-256 header
// against the request body using the repo's configured webhook secret.
// No third-party webhook-verification library appears anywhere in the
// reference pack, so this stays on crypto/hmac (see DESIGN.md).
func VerifySignature(secret []byte, body []byte, header string) error {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return fmt.Errorf("codehost: missing sha256 signature prefix")
	}
	want, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return fmt.Errorf("codehost: decoding signature: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	got := mac.Sum(nil)

	if !hmac.Equal(want, got) {
		return fmt.Errorf("codehost: webhook signature mismatch")
	}
	return nil
}

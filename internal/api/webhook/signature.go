package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 of the raw request body
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

var (
	errMissingSignature = errors.New("missing signature")
	errMalformed        = errors.New("malformed signature")
	errMismatch         = errors.New("signature mismatch")
)

// Sign returns the signature header value for body
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a "sha256=<hex>" header value against body in constant time
func VerifySignature(secret, body []byte, header string) error {
	if header == "" {
		return errMissingSignature
	}
	hexSum, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return errMalformed
	}
	got, err := hex.DecodeString(hexSum)
	if err != nil {
		return errMalformed
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return errMismatch
	}
	return nil
}

package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns hex(HMAC-SHA256(secret, gatewayOrderRef|paymentRef)).
func Sign(secret, gatewayOrderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the provided signature byte-for-byte against the
// lowercase hex digest, in constant time. The refs are signed exactly as given.
func VerifySignature(secret, gatewayOrderRef, paymentRef, signature string) bool {
	expected := Sign(secret, gatewayOrderRef, paymentRef)
	return hmac.Equal([]byte(expected), []byte(signature))
}

package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignConfirmation returns the lowercase hex HMAC-SHA256 of "transactionID|paymentID" keyed by secret.
func SignConfirmation(secret, transactionID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(transactionID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature equals the expected confirmation signature.
// The encoded forms are compared in constant time, so case changes in the hex are rejected too.
func VerifySignature(secret, transactionID, paymentID, signature string) bool {
	if secret == "" || transactionID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := SignConfirmation(secret, transactionID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

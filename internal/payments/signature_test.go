package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignConfirmationIsSymmetric(t *testing.T) {
	sig := SignConfirmation("secret", "order_ABC", "pay_123")
	require.Len(t, sig, 64)
	assert.True(t, VerifySignature("secret", "order_ABC", "pay_123", sig))
	assert.Equal(t, sig, SignConfirmation("secret", "order_ABC", "pay_123"))
}

func TestVerifySignatureRejectsSingleCharacterMutations(t *testing.T) {
	const secret = "rzp_secret"
	txID, payID := "order_Nq9xA1", "pay_Nq9yZ2"
	sig := SignConfirmation(secret, txID, payID)

	for i := range txID {
		assert.False(t, VerifySignature(secret, mutate(txID, i), payID, sig), "transaction id mutation at %d", i)
	}
	for i := range payID {
		assert.False(t, VerifySignature(secret, txID, mutate(payID, i), sig), "payment id mutation at %d", i)
	}
	for i := range sig {
		assert.False(t, VerifySignature(secret, txID, payID, mutate(sig, i)), "signature mutation at %d", i)
	}
}

func TestVerifySignatureRejectsEmptyInputs(t *testing.T) {
	sig := SignConfirmation("s", "t", "p")
	assert.False(t, VerifySignature("", "t", "p", sig))
	assert.False(t, VerifySignature("s", "", "p", sig))
	assert.False(t, VerifySignature("s", "t", "", sig))
	assert.False(t, VerifySignature("s", "t", "p", ""))
	assert.False(t, VerifySignature("other", "t", "p", sig))
}

func mutate(s string, i int) string {
	b := []byte(s)
	if b[i] == 'a' {
		b[i] = 'b'
	} else {
		b[i] = 'a'
	}
	return string(b)
}

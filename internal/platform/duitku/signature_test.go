package duitku

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bayarinter/billing/pkg/types"
)

func TestVerify(t *testing.T) {
	// md5("D0001" + "150000" + "inv-1" + "secret")
	sig := Signature("D0001", "150000", "inv-1", "secret")
	assert.Len(t, sig, 32)

	assert.True(t, Verify("D0001", "inv-1", "150000", "secret", sig))
	assert.True(t, Verify("D0001", "inv-1", "150000", "secret", strings.ToUpper(sig)))
	assert.False(t, Verify("D0001", "inv-1", "150001", "secret", sig))
	assert.False(t, Verify("D0001", "inv-1", "150000", "other", sig))
	assert.False(t, Verify("D0001", "inv-1", "150000", "secret", ""))
}

func TestSignature_KnownVector(t *testing.T) {
	// md5("abc")
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", Signature("a", "b", "c", ""))
}

func TestCallback_Status(t *testing.T) {
	tests := map[string]types.PaymentStatus{
		"00": types.PaymentStatusSuccess,
		"01": types.PaymentStatusFailed,
		"02": types.PaymentStatusPending,
		"":   types.PaymentStatusPending,
	}
	for code, want := range tests {
		cb := Callback{ResultCode: code}
		assert.Equal(t, want, cb.Status(), "resultCode %q", code)
	}
}

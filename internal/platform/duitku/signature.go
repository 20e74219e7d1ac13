// Package duitku holds the Duitku payment gateway callback contract.
package duitku

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/bayarinter/billing/pkg/types"
)

const (
	ResultCodeSuccess = "00"
	ResultCodeFailed  = "01"
)

// Callback is the payload Duitku posts to the merchant callback URL (form encoded, or JSON).
type Callback struct {
	MerchantCode     string `form:"merchantCode" json:"merchantCode"`
	Amount           string `form:"amount" json:"amount"`
	MerchantOrderID  string `form:"merchantOrderId" json:"merchantOrderId"`
	ProductDetail    string `form:"productDetail" json:"productDetail"`
	AdditionalParam  string `form:"additionalParam" json:"additionalParam"`
	PaymentCode      string `form:"paymentCode" json:"paymentCode"`
	ResultCode       string `form:"resultCode" json:"resultCode"`
	MerchantUserID   string `form:"merchantUserId" json:"merchantUserId"`
	Reference        string `form:"reference" json:"reference"`
	Signature        string `form:"signature" json:"signature"`
	PublisherOrderID string `form:"publisherOrderId" json:"publisherOrderId"`
	SettlementDate   string `form:"settlementDate" json:"settlementDate"`
	IssuerCode       string `form:"issuerCode" json:"issuerCode"`
}

// Status maps resultCode onto the internal payment vocabulary.
func (c *Callback) Status() types.PaymentStatus {
	switch strings.TrimSpace(c.ResultCode) {
	case ResultCodeSuccess:
		return types.PaymentStatusSuccess
	case ResultCodeFailed:
		return types.PaymentStatusFailed
	default:
		return types.PaymentStatusPending
	}
}

// Signature is md5(merchantCode + amount + merchantOrderId + apiKey), lower-case hex.
func Signature(merchantCode, amount, orderID, apiKey string) string {
	sum := md5.Sum([]byte(merchantCode + amount + orderID + apiKey))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether signature matches the expected digest, ignoring case.
func Verify(merchantCode, orderID, amount, apiKey, signature string) bool {
	if signature == "" {
		return false
	}
	want := Signature(merchantCode, amount, orderID, apiKey)
	got := strings.ToLower(strings.TrimSpace(signature))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

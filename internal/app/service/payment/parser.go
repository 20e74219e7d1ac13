package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bayarinter/billing/internal/platform/duitku"
	"github.com/bayarinter/billing/pkg/config"
	"github.com/bayarinter/billing/pkg/types"
)

// Event is a provider callback normalized to the internal payment vocabulary.
type Event struct {
	Provider  types.PaymentProvider
	InvoiceID string
	TxnID     string
	Amount    int64
	Method    string
	Status    types.PaymentStatus
	PaidAt    *time.Time
}

// CallbackParser adapts one provider's callback shape. OrderID and TransactionID must
// work on unverified input since they key the audit log.
type CallbackParser interface {
	Provider() types.PaymentProvider
	OrderID() string
	TransactionID() string
	Verify() error
	Event() (*Event, error)
	Data() any
}

var (
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrMalformedCallback = errors.New("malformed callback")
)

// malformedParser stands in for a body that could not be decoded, so it is still
// audited and then rejected.
type malformedParser struct {
	provider types.PaymentProvider
	raw      []byte
	err      error
}

func NewMalformedParser(provider types.PaymentProvider, raw []byte, err error) CallbackParser {
	return &malformedParser{provider: provider, raw: raw, err: err}
}

func (p *malformedParser) Provider() types.PaymentProvider { return p.provider }
func (p *malformedParser) OrderID() string                 { return "" }
func (p *malformedParser) TransactionID() string           { return "" }

func (p *malformedParser) Data() any {
	if json.Valid(p.raw) {
		return json.RawMessage(p.raw)
	}
	return string(p.raw)
}

func (p *malformedParser) Verify() error {
	return fmt.Errorf("%w: %v", ErrMalformedCallback, p.err)
}

func (p *malformedParser) Event() (*Event, error) { return nil, ErrMalformedCallback }

// GenericEvent is the provider-neutral webhook body.
type GenericEvent struct {
	Provider  string     `json:"provider"`
	TxnID     string     `json:"txn_id" binding:"required"`
	InvoiceID string     `json:"invoice_id" binding:"required"`
	Amount    int64      `json:"amount"`
	Status    string     `json:"status" binding:"required"`
	PaidAt    *time.Time `json:"paid_at"`
}

type genericParser struct {
	ev *GenericEvent
}

func NewGenericParser(ev *GenericEvent) CallbackParser {
	return &genericParser{ev: ev}
}

func (p *genericParser) Provider() types.PaymentProvider { return types.PaymentProviderGeneric }
func (p *genericParser) OrderID() string                 { return p.ev.InvoiceID }
func (p *genericParser) TransactionID() string           { return p.ev.TxnID }
func (p *genericParser) Data() any                       { return p.ev }

// Verify is a no-op: the generic webhook is authenticated by the route.
func (p *genericParser) Verify() error { return nil }

func (p *genericParser) Event() (*Event, error) {
	if p.ev.TxnID == "" || p.ev.InvoiceID == "" {
		return nil, fmt.Errorf("txn_id and invoice_id are required")
	}
	status := types.PaymentStatus(strings.ToLower(p.ev.Status))
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", p.ev.Status)
	}
	if p.ev.Amount < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	method := strings.ToLower(strings.TrimSpace(p.ev.Provider))
	if method == "" {
		method = string(types.PaymentProviderGeneric)
	}
	return &Event{
		Provider:  types.PaymentProviderGeneric,
		InvoiceID: p.ev.InvoiceID,
		TxnID:     p.ev.TxnID,
		Amount:    p.ev.Amount,
		Method:    method,
		Status:    status,
		PaidAt:    p.ev.PaidAt,
	}, nil
}

type duitkuParser struct {
	cfg config.DuitkuConfig
	cb  *duitku.Callback
	now time.Time
}

func NewDuitkuParser(cfg config.DuitkuConfig, cb *duitku.Callback, now time.Time) CallbackParser {
	return &duitkuParser{cfg: cfg, cb: cb, now: now}
}

func (p *duitkuParser) Provider() types.PaymentProvider { return types.PaymentProviderDuitku }
func (p *duitkuParser) OrderID() string                 { return p.cb.MerchantOrderID }
func (p *duitkuParser) TransactionID() string           { return p.cb.Reference }
func (p *duitkuParser) Data() any                       { return p.cb }

func (p *duitkuParser) Verify() error {
	if p.cfg.APIKey == "" {
		return fmt.Errorf("duitku api key is not configured")
	}
	if p.cfg.MerchantCode != "" && p.cb.MerchantCode != p.cfg.MerchantCode {
		return fmt.Errorf("unexpected merchant code %q", p.cb.MerchantCode)
	}
	if !duitku.Verify(p.cb.MerchantCode, p.cb.MerchantOrderID, p.cb.Amount, p.cfg.APIKey, p.cb.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

func (p *duitkuParser) Event() (*Event, error) {
	if p.cb.MerchantOrderID == "" || p.cb.Reference == "" {
		return nil, fmt.Errorf("merchantOrderId and reference are required")
	}
	amount, err := parseAmount(p.cb.Amount)
	if err != nil {
		return nil, err
	}
	ev := &Event{
		Provider:  types.PaymentProviderDuitku,
		InvoiceID: p.cb.MerchantOrderID,
		TxnID:     p.cb.Reference,
		Amount:    amount,
		Method:    string(types.PaymentProviderDuitku),
		Status:    p.cb.Status(),
	}
	if ev.Status == types.PaymentStatusSuccess {
		paidAt := p.now
		ev.PaidAt = &paidAt
	}
	return ev, nil
}

// parseAmount accepts whole rupiah, with or without a zero fraction ("150000", "150000.00").
func parseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return int64(f), nil
}

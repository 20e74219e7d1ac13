package handlers

import (
	"github.com/bayarinter/billing/internal/app/service/billing"
	"github.com/bayarinter/billing/internal/app/service/invoice"
	"github.com/bayarinter/billing/internal/app/service/payment"
	"github.com/bayarinter/billing/internal/app/service/session"
	"github.com/bayarinter/billing/internal/app/service/subscriber"
	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/pkg/response"
)

// RespOK is a generic envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespCustomerInvoice struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.CustomerInvoice   `json:"data"`
}

type RespCustomerInvoicePage struct {
	Code    response.APIResponseCode               `json:"code"`
	Message string                                 `json:"message"`
	Data    response.Page[*models.CustomerInvoice] `json:"data"`
}

// RespPaidCustomerInvoice carries the paid invoice, its payment and the new active_until.
type RespPaidCustomerInvoice struct {
	Code    response.APIResponseCode    `json:"code"`
	Message string                      `json:"message"`
	Data    invoice.PaidCustomerInvoice `json:"data"`
}

type RespResellerInvoice struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.ResellerInvoice   `json:"data"`
}

type RespResellerInvoicePage struct {
	Code    response.APIResponseCode               `json:"code"`
	Message string                                 `json:"message"`
	Data    response.Page[*models.ResellerInvoice] `json:"data"`
}

type RespPayment struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Payment           `json:"data"`
}

type RespPaymentPage struct {
	Code    response.APIResponseCode       `json:"code"`
	Message string                         `json:"message"`
	Data    response.Page[*models.Payment] `json:"data"`
}

type RespCallbackResult struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    payment.CallbackResult   `json:"data"`
}

type RespStatusChange struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    subscriber.StatusChange  `json:"data"`
}

type RespSessionOutcome struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    session.Outcome          `json:"data"`
}

type RespBatchResult struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    billing.BatchResult      `json:"data"`
}

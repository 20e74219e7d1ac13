package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/api/middleware"
	"github.com/bayarinter/billing/internal/app/service/invoice"
	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/pkg/response"
)

type CreateCustomerInvoiceRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Months int    `json:"months"`
}

type PayCustomerInvoiceRequest struct {
	Amount        *int64     `json:"amount"`
	Method        string     `json:"method"`
	ProviderTxnID *string    `json:"provider_txn_id"`
	PaidAt        *time.Time `json:"paid_at"`
}

// @Summary      List customer invoices
// @Description  Lists the caller's customer invoices, newest first.
// @Tags         Invoices
// @Produce      json
// @Security     BearerAuth
// @Param        user_id   query  string  false  "Subscriber id"
// @Param        status    query  string  false  "unpaid or paid"
// @Param        period    query  string  false  "Month of period_start, YYYY-MM"
// @Param        page      query  int     false  "Page, from 1"
// @Param        per_page  query  int     false  "Page size, 1..100"
// @Success      200  {object}  handlers.RespCustomerInvoicePage
// @Failure      400  {object}  handlers.RespOK
// @Router       /api/v1/invoices [get]
func ApiListCustomerInvoices(mgr *invoice.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := listQuery(c)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		if q.Filters, err = customerInvoiceFilters(c); err != nil {
			badRequest(c, err.Error())
			return
		}
		items, total, err := mgr.ListCustomerInvoices(c.Request.Context(), q)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(response.Page[*models.CustomerInvoice]{
			Items: items, Total: total, Page: q.Page, PerPage: q.PerPage,
		}))
	}
}

// @Summary      Get customer invoice
// @Tags         Invoices
// @Produce      json
// @Security     BearerAuth
// @Param        id   path  string  true  "Invoice id"
// @Success      200  {object}  handlers.RespCustomerInvoice
// @Failure      404  {object}  handlers.RespOK
// @Router       /api/v1/invoices/{id} [get]
func ApiGetCustomerInvoice(mgr *invoice.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		inv, err := mgr.GetCustomerInvoice(c.Request.Context(), middleware.Scope(c), c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(inv))
	}
}

// @Summary      Create customer invoice
// @Description  Issues the next invoice for a subscriber. An invoice for the same period is returned as is (200); a new one answers 201.
// @Tags         Invoices
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  handlers.CreateCustomerInvoiceRequest  true  "Subscriber and month count (default 1)"
// @Success      201  {object}  handlers.RespCustomerInvoice
// @Success      200  {object}  handlers.RespCustomerInvoice
// @Failure      400  {object}  handlers.RespOK
// @Failure      404  {object}  handlers.RespOK
// @Failure      409  {object}  handlers.RespOK
// @Router       /api/v1/invoices [post]
func ApiCreateCustomerInvoice(mgr *invoice.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateCustomerInvoiceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if req.Months == 0 {
			req.Months = 1
		}
		inv, created, err := mgr.CreateCustomerInvoice(c.Request.Context(), middleware.Scope(c), req.UserID, req.Months)
		if err != nil {
			writeError(c, log, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, response.OKT(inv))
	}
}

// @Summary      Pay customer invoice
// @Description  Marks the invoice paid, records the payment and extends the subscriber's active_until by the invoice period.
// @Tags         Invoices
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string                                true   "Invoice id"
// @Param        body  body  handlers.PayCustomerInvoiceRequest    false  "Payment details"
// @Success      200  {object}  handlers.RespPaidCustomerInvoice
// @Failure      404  {object}  handlers.RespOK
// @Failure      409  {object}  handlers.RespOK
// @Router       /api/v1/invoices/{id}/pay [put]
func ApiPayCustomerInvoice(mgr *invoice.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PayCustomerInvoiceRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}
		if req.Amount != nil && *req.Amount < 0 {
			badRequest(c, "amount must not be negative")
			return
		}
		res, err := mgr.PayCustomerInvoice(c.Request.Context(), middleware.Scope(c), c.Param("id"), invoice.PayOptions{
			Amount:        req.Amount,
			Method:        req.Method,
			ProviderTxnID: req.ProviderTxnID,
			PaidAt:        req.PaidAt,
		})
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterCustomerInvoiceRoutes(r gin.IRouter, mgr *invoice.Manager, log *zap.SugaredLogger) {
	r.GET("/invoices", ApiListCustomerInvoices(mgr, log))
	r.POST("/invoices", ApiCreateCustomerInvoice(mgr, log))
	r.GET("/invoices/:id", ApiGetCustomerInvoice(mgr, log))
	r.PUT("/invoices/:id/pay", ApiPayCustomerInvoice(mgr, log))
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/api/middleware"
	"github.com/bayarinter/billing/internal/app/service/payment"
	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/pkg/response"
	"github.com/bayarinter/billing/pkg/types"
)

type CreatePaymentRequest struct {
	InvoiceID     string     `json:"invoice_id" binding:"required"`
	Amount        *int64     `json:"amount"`
	Method        string     `json:"method"`
	ProviderTxnID *string    `json:"provider_txn_id"`
	Status        string     `json:"status"`
	PaidAt        *time.Time `json:"paid_at"`
}

// @Summary      List payments
// @Tags         Payments
// @Produce      json
// @Security     BearerAuth
// @Param        invoice_id  query  string  false  "Customer invoice id"
// @Param        method      query  string  false  "Payment method"
// @Param        status      query  string  false  "pending, success or failed"
// @Param        period      query  string  false  "Month of creation, YYYY-MM"
// @Param        page        query  int     false  "Page, from 1"
// @Param        per_page    query  int     false  "Page size, 1..100"
// @Success      200  {object}  handlers.RespPaymentPage
// @Failure      400  {object}  handlers.RespOK
// @Router       /api/v1/payments [get]
func ApiListPayments(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := listQuery(c)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		if q.Filters, err = paymentFilters(c); err != nil {
			badRequest(c, err.Error())
			return
		}
		items, total, err := svc.ListPayments(c.Request.Context(), q)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(response.Page[*models.Payment]{
			Items: items, Total: total, Page: q.Page, PerPage: q.PerPage,
		}))
	}
}

// @Summary      Get payment
// @Tags         Payments
// @Produce      json
// @Security     BearerAuth
// @Param        id   path  string  true  "Payment id"
// @Success      200  {object}  handlers.RespPayment
// @Failure      404  {object}  handlers.RespOK
// @Router       /api/v1/payments/{id} [get]
func ApiGetPayment(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.GetPayment(c.Request.Context(), middleware.Scope(c), c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(p))
	}
}

// @Summary      Record manual payment
// @Description  Records a payment against a customer invoice. Status defaults to success, which pays the invoice.
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  handlers.CreatePaymentRequest  true  "Payment"
// @Success      201  {object}  handlers.RespPayment
// @Failure      400  {object}  handlers.RespOK
// @Failure      404  {object}  handlers.RespOK
// @Failure      409  {object}  handlers.RespOK
// @Router       /api/v1/payments [post]
func ApiCreatePayment(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		p, err := svc.CreateManualPayment(c.Request.Context(), middleware.Scope(c), payment.ManualPayment{
			InvoiceID:     req.InvoiceID,
			Amount:        req.Amount,
			Method:        req.Method,
			ProviderTxnID: req.ProviderTxnID,
			Status:        types.PaymentStatus(req.Status),
			PaidAt:        req.PaidAt,
		})
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, response.OKT(p))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, svc *payment.Service, log *zap.SugaredLogger) {
	r.GET("/payments", ApiListPayments(svc, log))
	r.POST("/payments", ApiCreatePayment(svc, log))
	r.GET("/payments/:id", ApiGetPayment(svc, log))
}

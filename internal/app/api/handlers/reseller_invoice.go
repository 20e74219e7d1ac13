package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/api/middleware"
	"github.com/bayarinter/billing/internal/app/repository"
	"github.com/bayarinter/billing/internal/app/service/invoice"
	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/pkg/response"
)

type GenerateResellerInvoiceRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type AdminGenerateResellerInvoiceRequest struct {
	ResellerID string `json:"reseller_id" binding:"required"`
	Year       int    `json:"year"`
	Month      int    `json:"month"`
}

// @Summary      List reseller invoices
// @Description  Lists the caller's own invoices from the platform.
// @Tags         ResellerInvoices
// @Produce      json
// @Security     BearerAuth
// @Param        status    query  string  false  "unpaid or paid"
// @Param        year      query  int     false  "Year of period_start"
// @Param        month     query  int     false  "Month of period_start, needs year"
// @Param        page      query  int     false  "Page, from 1"
// @Param        per_page  query  int     false  "Page size, 1..100"
// @Success      200  {object}  handlers.RespResellerInvoicePage
// @Failure      400  {object}  handlers.RespOK
// @Router       /api/v1/reseller-invoices [get]
func ApiListResellerInvoices(mgr *invoice.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := listQuery(c)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		if q.Filters, err = resellerInvoiceFilters(c); err != nil {
			badRequest(c, err.Error())
			return
		}
		items, total, err := mgr.ListResellerInvoices(c.Request.Context(), q)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(response.Page[*models.ResellerInvoice]{
			Items: items, Total: total, Page: q.Page, PerPage: q.PerPage,
		}))
	}
}

// @Summary      Get reseller invoice
// @Tags         ResellerInvoices
// @Produce      json
// @Security     BearerAuth
// @Param        id   path  string  true  "Invoice id"
// @Success      200  {object}  handlers.RespResellerInvoice
// @Failure      404  {object}  handlers.RespOK
// @Router       /api/v1/reseller-invoices/{id} [get]
func ApiGetResellerInvoice(mgr *invoice.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		inv, err := mgr.GetResellerInvoice(c.Request.Context(), middleware.Scope(c), c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(inv))
	}
}

// @Summary      Generate reseller invoice
// @Description  Bills the caller for a calendar month (default: current month).
// @Tags         ResellerInvoices
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  handlers.GenerateResellerInvoiceRequest  false  "Year and month"
// @Success      201  {object}  handlers.RespResellerInvoice
// @Failure      400  {object}  handlers.RespOK
// @Failure      409  {object}  handlers.RespOK
// @Router       /api/v1/reseller-invoices/generate [post]
func ApiGenerateResellerInvoice(mgr *invoice.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GenerateResellerInvoiceRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}
		inv, err := mgr.GenerateResellerInvoice(c.Request.Context(), middleware.Scope(c).ResellerID, req.Year, req.Month)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, response.OKT(inv))
	}
}

func payResellerInvoice(mgr *invoice.Manager, log *zap.SugaredLogger, scope func(*gin.Context) repository.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		inv, err := mgr.PayResellerInvoice(c.Request.Context(), scope(c), c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(inv))
	}
}

// @Summary      Pay reseller invoice
// @Tags         ResellerInvoices
// @Produce      json
// @Security     BearerAuth
// @Param        id   path  string  true  "Invoice id"
// @Success      200  {object}  handlers.RespResellerInvoice
// @Failure      404  {object}  handlers.RespOK
// @Failure      409  {object}  handlers.RespOK
// @Router       /api/v1/reseller-invoices/{id}/pay [put]
func ApiPayResellerInvoice(mgr *invoice.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return payResellerInvoice(mgr, log, middleware.Scope)
}

// @Summary      Pay reseller invoice (Admin)
// @Tags         Admin
// @Produce      json
// @Security     BasicAuth
// @Param        id   path  string  true  "Invoice id"
// @Success      200  {object}  handlers.RespResellerInvoice
// @Failure      404  {object}  handlers.RespOK
// @Failure      409  {object}  handlers.RespOK
// @Router       /api/v1/admin/reseller-invoices/{id}/pay [put]
func ApiAdminPayResellerInvoice(mgr *invoice.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return payResellerInvoice(mgr, log, func(*gin.Context) repository.Scope { return repository.SystemScope() })
}

// @Summary      Generate reseller invoice (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BasicAuth
// @Param        body  body  handlers.AdminGenerateResellerInvoiceRequest  true  "Reseller, year and month"
// @Success      201  {object}  handlers.RespResellerInvoice
// @Failure      400  {object}  handlers.RespOK
// @Failure      404  {object}  handlers.RespOK
// @Failure      409  {object}  handlers.RespOK
// @Router       /api/v1/admin/reseller-invoices/generate [post]
func ApiAdminGenerateResellerInvoice(mgr *invoice.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AdminGenerateResellerInvoiceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		inv, err := mgr.GenerateResellerInvoice(c.Request.Context(), req.ResellerID, req.Year, req.Month)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, response.OKT(inv))
	}
}

func RegisterResellerInvoiceRoutes(r gin.IRouter, mgr *invoice.Manager, log *zap.SugaredLogger) {
	r.GET("/reseller-invoices", ApiListResellerInvoices(mgr, log))
	r.POST("/reseller-invoices/generate", ApiGenerateResellerInvoice(mgr, log))
	r.GET("/reseller-invoices/:id", ApiGetResellerInvoice(mgr, log))
	r.PUT("/reseller-invoices/:id/pay", ApiPayResellerInvoice(mgr, log))
}

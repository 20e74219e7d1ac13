package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/service/billing"
	"github.com/bayarinter/billing/internal/app/service/invoice"
	"github.com/bayarinter/billing/pkg/dates"
	"github.com/bayarinter/billing/pkg/response"
)

type RunJobRequest struct {
	// Today overrides the billing day, YYYY-MM-DD.
	Today string `json:"today"`
}

// @Summary      Run batch job (Admin)
// @Description  Runs one billing job now. Jobs are idempotent per day, so re-running is safe.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BasicAuth
// @Param        job   path  string                  true   "generate_customer_invoices, remind_unpaid_invoices, suspend_overdue_users or generate_reseller_invoices"
// @Param        body  body  handlers.RunJobRequest  false  "Billing day override"
// @Success      200  {object}  handlers.RespBatchResult
// @Failure      400  {object}  handlers.RespOK
// @Router       /api/v1/admin/jobs/{job}/run [post]
func ApiAdminRunJob(engine *billing.Engine, mgr *invoice.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RunJobRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}
		today := mgr.Today()
		if req.Today != "" {
			d, err := dates.Parse(req.Today)
			if err != nil {
				badRequest(c, "today must be YYYY-MM-DD")
				return
			}
			today = d
		}
		start := time.Now()
		res, err := engine.Run(c.Request.Context(), c.Param("job"), today)
		if err != nil {
			writeError(c, log, err)
			return
		}
		log.Infow("admin_job_run", "job", res.Job, "today", dates.Format(today), "processed", res.Processed, "took", time.Since(start))
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, engine *billing.Engine, mgr *invoice.Manager, log *zap.SugaredLogger) {
	r.POST("/jobs/:job/run", ApiAdminRunJob(engine, mgr, log))
	r.POST("/reseller-invoices/generate", ApiAdminGenerateResellerInvoice(mgr, log))
	r.PUT("/reseller-invoices/:id/pay", ApiAdminPayResellerInvoice(mgr, log))
}

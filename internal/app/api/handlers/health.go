package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bayarinter/billing/pkg/response"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency the service cannot serve without.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus is the body of /healthz and /readyz.
type HealthStatus struct {
	Status   string    `json:"status"`
	Database string    `json:"database,omitempty"`
	Time     time.Time `json:"time"`
}

// @Summary      Liveness
// @Description  Reports that the process is serving requests
// @Tags         System
// @Produce      json
// @Success      200  {object}  handlers.HealthStatus
// @Router       /healthz [get]
func ApiLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, response.OKT(HealthStatus{Status: "ok", Time: time.Now().UTC()}))
}

// @Summary      Readiness
// @Description  Reports whether the ledger database answers
// @Tags         System
// @Produce      json
// @Success      200  {object}  handlers.HealthStatus
// @Failure      503  {object}  handlers.HealthStatus
// @Router       /readyz [get]
func ApiReadiness(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		st := HealthStatus{Status: "ok", Database: "up", Time: time.Now().UTC()}
		if err := db.Ping(ctx); err != nil {
			_ = c.Error(err)
			st.Status, st.Database = "unavailable", "down"
			c.JSON(http.StatusServiceUnavailable, response.ErrorT(response.APIResponseCodeError, st))
			return
		}
		c.JSON(http.StatusOK, response.OKT(st))
	}
}

func RegisterHealthRoutes(r gin.IRouter, db Pinger) {
	r.GET("/healthz", ApiLiveness)
	r.GET("/readyz", ApiReadiness(db))
}

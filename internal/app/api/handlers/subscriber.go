package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/api/middleware"
	"github.com/bayarinter/billing/internal/app/service/subscriber"
	"github.com/bayarinter/billing/pkg/response"
	"github.com/bayarinter/billing/pkg/types"
)

type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// @Summary      Change subscriber status
// @Description  Activates or suspends a subscriber and drops its live session so the NAS re-authorizes.
// @Tags         Subscribers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string                         true  "Subscriber id"
// @Param        body  body  handlers.ChangeStatusRequest   true  "active or suspended"
// @Success      200  {object}  handlers.RespStatusChange
// @Failure      400  {object}  handlers.RespOK
// @Failure      404  {object}  handlers.RespOK
// @Router       /api/v1/users/{id}/status [put]
func ApiChangeSubscriberStatus(svc *subscriber.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChangeStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svc.ChangeStatus(c.Request.Context(), middleware.Scope(c), c.Param("id"), types.SubscriberStatus(req.Status))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Delete subscriber
// @Description  Drops live sessions, then soft-deletes the subscriber. Invoices and payments are kept.
// @Tags         Subscribers
// @Produce      json
// @Security     BearerAuth
// @Param        id   path  string  true  "Subscriber id"
// @Success      200  {object}  handlers.RespSessionOutcome
// @Failure      404  {object}  handlers.RespOK
// @Router       /api/v1/users/{id} [delete]
func ApiDeleteSubscriber(svc *subscriber.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		outcome, err := svc.Delete(c.Request.Context(), middleware.Scope(c), c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(outcome))
	}
}

// @Summary      Disconnect sessions
// @Description  Sends a RADIUS Disconnect-Request for every open session of the subscriber.
// @Tags         Subscribers
// @Produce      json
// @Security     BearerAuth
// @Param        username  path  string  true  "PPP username"
// @Success      200  {object}  handlers.RespSessionOutcome
// @Failure      404  {object}  handlers.RespOK
// @Router       /api/v1/sessions/{username} [delete]
func ApiDisconnectSessions(svc *subscriber.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		outcome, err := svc.DisconnectSessions(c.Request.Context(), middleware.Scope(c), c.Param("username"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(outcome))
	}
}

func RegisterSubscriberRoutes(r gin.IRouter, svc *subscriber.Service, log *zap.SugaredLogger) {
	r.PUT("/users/:id/status", ApiChangeSubscriberStatus(svc, log))
	r.DELETE("/users/:id", ApiDeleteSubscriber(svc, log))
	r.DELETE("/sessions/:username", ApiDisconnectSessions(svc, log))
}

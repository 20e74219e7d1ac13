package handlers

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/service/payment"
	"github.com/bayarinter/billing/internal/platform/duitku"
	"github.com/bayarinter/billing/pkg/logctx"
	"github.com/bayarinter/billing/pkg/response"
	"github.com/bayarinter/billing/pkg/types"
)

// DuitkuAck is the body Duitku expects to stop retrying a callback.
type DuitkuAck struct {
	Status string `json:"status"`
}

// @Summary      Generic payment webhook
// @Description  Provider-neutral payment event. Replays of the same txn_id and status change nothing.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Security     BasicAuth
// @Param        payload  body  payment.GenericEvent  true  "Payment event"
// @Success      200  {object}  handlers.RespCallbackResult
// @Failure      400  {object}  handlers.RespOK
// @Failure      404  {object}  handlers.RespOK
// @Router       /api/v1/payments/webhook [post]
func ApiPaymentWebhook(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bufferBody(c)
		var (
			ev     payment.GenericEvent
			parser payment.CallbackParser
		)
		if err := c.ShouldBindJSON(&ev); err != nil {
			parser = payment.NewMalformedParser(types.PaymentProviderGeneric, raw, err)
		} else {
			parser = payment.NewGenericParser(&ev)
		}
		res, err := svc.HandleCallback(c.Request.Context(), parser)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Duitku callback
// @Description  Duitku payment callback (form or JSON). Authentic callbacks are acknowledged with {"status":"SUCCESS"}.
// @Tags         Webhook
// @Accept       x-www-form-urlencoded
// @Accept       json
// @Produce      json
// @Param        payload  body  duitku.Callback  true  "Duitku callback"
// @Success      200  {object}  handlers.DuitkuAck
// @Failure      400  {object}  handlers.RespOK
// @Failure      401  {object}  handlers.RespOK
// @Failure      404  {object}  handlers.RespOK
// @Router       /api/v1/payments/callback/duitku [post]
func ApiDuitkuCallback(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bufferBody(c)
		var cb duitku.Callback
		parser := svc.DuitkuParser(&cb)
		b := binding.Default(c.Request.Method, c.ContentType())
		if err := c.ShouldBindWith(&cb, b); err != nil {
			parser = payment.NewMalformedParser(types.PaymentProviderDuitku, raw, err)
		}
		logctx.FromGin(c, log).Infow("webhook_duitku_received", "order_id", cb.MerchantOrderID, "reference", cb.Reference, "result_code", cb.ResultCode)

		if _, err := svc.HandleCallback(c.Request.Context(), parser); err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, DuitkuAck{Status: "SUCCESS"})
	}
}

// bufferBody keeps a copy of the request body for the audit log and leaves it readable
// for binding.
func bufferBody(c *gin.Context) []byte {
	raw, _ := c.GetRawData()
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	return raw
}

// RegisterPaymentWebhookRoutes mounts the provider callbacks. guard protects the generic
// webhook, which carries no signature of its own.
func RegisterPaymentWebhookRoutes(r gin.IRouter, svc *payment.Service, log *zap.SugaredLogger, guard gin.HandlerFunc) {
	r.POST("/payments/webhook", guard, ApiPaymentWebhook(svc, log))
	r.POST("/payments/callback/duitku", ApiDuitkuCallback(svc, log))
}

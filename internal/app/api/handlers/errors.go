package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/pkg/apperr"
	"github.com/bayarinter/billing/pkg/logctx"
	"github.com/bayarinter/billing/pkg/response"
)

// writeError maps an error kind onto the HTTP status and envelope code. Internal errors
// are logged and answered with a generic message.
func writeError(c *gin.Context, log *zap.SugaredLogger, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		c.JSON(http.StatusNotFound, response.ErrorMsgT[any](response.APIResponseCodeNotFound, apperr.Message(err), nil))
	case apperr.KindConflict:
		c.JSON(http.StatusConflict, response.ErrorMsgT[any](response.APIResponseCodeConflict, apperr.Message(err), nil))
	case apperr.KindUnauthorized:
		c.JSON(http.StatusUnauthorized, response.ErrorMsgT[any](response.APIResponseCodeUnauthorized, apperr.Message(err), nil))
	case apperr.KindValidation:
		c.JSON(http.StatusBadRequest, response.ErrorMsgT[any](response.APIResponseCodeBadRequest, apperr.Message(err), nil))
	default:
		logctx.FromGin(c, log).Errorw("request_failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.ErrorMsgT[any](response.APIResponseCodeBadRequest, msg, nil))
}

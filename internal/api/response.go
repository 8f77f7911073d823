package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"panel-wallet/internal/model"
)

// Response is the envelope of every API reply.
type Response struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

const (
	codeBadRequest   = "BAD_REQUEST"
	codeUnauthorized = "UNAUTHORIZED"
	codeForbidden    = "FORBIDDEN"
	codeServerError  = "SERVER_ERROR"
)

// statusFor maps a ledger outcome to its HTTP status.
func statusFor(code model.Code) int {
	switch code {
	case model.CodeOK:
		return http.StatusOK
	case model.CodeAccountNotFound, model.CodeNotFound:
		return http.StatusNotFound
	case model.CodeAlreadyVerified, model.CodeAlreadyRejected, model.CodeAlreadyProcessed, model.CodeInvalidState:
		return http.StatusConflict
	case model.CodePriceNotConfigured, model.CodeInsufficientCredit, model.CodeInvalidAmount:
		return http.StatusUnprocessableEntity
	case model.CodeProvisioningFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Outcome writes a ledger result with the status derived from its code.
func Outcome(c *gin.Context, code model.Code, data any) {
	c.JSON(statusFor(code), Response{Code: string(code), Data: data})
}

// Success writes a 200 reply.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: string(model.CodeOK), Data: data})
}

// Error writes a failure reply with an explicit status.
func Error(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{Code: code, Message: message})
}

// ParamError rejects malformed input.
func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, codeBadRequest, message)
}

// ServerError hides infrastructure failures behind a generic message.
func ServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, codeServerError, "internal server error")
}

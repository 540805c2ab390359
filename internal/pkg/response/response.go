// Package response provides the gin response helpers used by all handlers.
package response

import (
	"net/http"

	infraerrors "github.com/y-cruce/postflow/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Success writes data as-is with HTTP 200.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Created writes data as-is with HTTP 201.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// SuccessWithMessage 返回 {ok:true, message:...} 形式的简单成功响应
func SuccessWithMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": message})
}

// Error writes a bare error body with the given status.
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": codeForStatus(status), "message": message})
}

// ErrorWithCode writes an error body with a machine-readable code.
func ErrorWithCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"code": code, "message": message})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}

// ErrorFromAPIError 将业务错误映射为 HTTP 响应；Details 平铺进响应体
func ErrorFromAPIError(c *gin.Context, err error) {
	apiErr, ok := infraerrors.AsAPIError(err)
	if !ok {
		InternalError(c, "internal server error")
		return
	}
	body := gin.H{"code": apiErr.Code, "message": apiErr.Message}
	for k, v := range apiErr.Details {
		body[k] = v
	}
	c.JSON(apiErr.HTTPStatus, body)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusUnprocessableEntity:
		return "UNPROCESSABLE"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

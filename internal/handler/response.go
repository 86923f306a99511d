package handler

import (
	"errors"
	"net/http"

	"github.com/blues/wallet-reward/internal/logic"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// LogicErrorResponse 按业务错误类型返回对应状态码
func LogicErrorResponse(c *gin.Context, err error) {
	ErrorResponse(c, errorStatus(err), err.Error())
}

func errorStatus(err error) int {
	var submissionErr *logic.SubmissionError
	switch {
	case errors.Is(err, logic.ErrInvalidTransfer):
		return http.StatusBadRequest
	case errors.Is(err, logic.ErrTransactionNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, logic.ErrTransactionNotPending), errors.Is(err, logic.ErrPeriodNotEnded):
		return http.StatusConflict
	case errors.Is(err, logic.ErrNoAdminWallet):
		return http.StatusPreconditionFailed
	case errors.As(err, &submissionErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

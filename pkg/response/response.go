package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/clearstack/pkg/logger"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

func Error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Code: status, Message: message})
}

func BadRequest(c *gin.Context, message string) { Error(c, http.StatusBadRequest, message) }

func Unauthorized(c *gin.Context, message string) { Error(c, http.StatusUnauthorized, message) }

func Forbidden(c *gin.Context, message string) { Error(c, http.StatusForbidden, message) }

func NotFound(c *gin.Context, message string) { Error(c, http.StatusNotFound, message) }

func Conflict(c *gin.Context, message string) { Error(c, http.StatusConflict, message) }

// InternalError 记录原始错误，只向调用方返回通用信息
func InternalError(c *gin.Context, err error) {
	logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	Error(c, http.StatusInternalServerError, "internal server error")
}

package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 统一错误响应
//
// 业务错误直接映射为 HTTP 状态码：
//   400 参数/业务规则错误（金额非法、自转账、余额不足）
//   401 凭证错误
//   404 用户/账号不存在
//   409 用户名或账号冲突
//   503 锁竞争超时（可重试）
//   500 存储等内部错误（只回通用文案，不泄露内部细节）

type ErrorBody struct {
	Message string `json:"message"`
}

func Error(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorBody{Message: message})
}

func ParamError(c *gin.Context, message string) {
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

// Busy 锁竞争超时，请求方可稍后重试
func Busy(c *gin.Context, message string) {
	Error(c, http.StatusServiceUnavailable, message)
}

func ServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "服务器内部错误")
}

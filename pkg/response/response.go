package response

import (
	"net/http"

	"signalflow/internal/consts"
	"signalflow/pkg/errors"
	"signalflow/pkg/errors/ecode"

	"github.com/gin-gonic/gin"
)

// 代表响应给客户端的的一个消息结构，包括错误码，错误信息，响应数据
type ApiResponse struct {
	RequestId string      `json:"request_id"` // 请求的唯一ID
	Code      int         `json:"code"`       // 错误码 0表示无错误
	Message   string      `json:"message"`    // 提示信息
	Data      interface{} `json:"data"`       // 响应数据
}

// JSON 发送json格式数据
// code != 0 时返回http 400，成功返回200
func JSON(c *gin.Context, err error, data interface{}) {
	code, message := errors.DecodeErr(err)
	var httpStatus int
	if code != ecode.Success {
		httpStatus = http.StatusBadRequest
	} else {
		httpStatus = http.StatusOK
	}
	c.JSON(httpStatus, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      code,
		Message:   message,
		Data:      data,
	})
}

// RequireAuthErr token鉴权失败或签名校验失败，返回401
func RequireAuthErr(c *gin.Context, err error) {
	code, message := errors.DecodeErr(err)
	if code == ecode.Success {
		code = ecode.RequireAuthErr
		message = ecode.Message(code)
	}
	c.JSON(http.StatusUnauthorized, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      code,
		Message:   message,
		Data:      nil,
	})
}

// Forbidden 账户归属校验失败，返回403
func Forbidden(c *gin.Context, err error) {
	code, message := errors.DecodeErr(err)
	if code == ecode.Success {
		code = ecode.OwnershipErr
		message = ecode.Message(code)
	}
	c.JSON(http.StatusForbidden, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      code,
		Message:   message,
		Data:      nil,
	})
}

// TooManyRequests 请求频繁，返回429
func TooManyRequests(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      ecode.TooManyRequests,
		Message:   "The request is too frequent. Please try again later.",
		Data:      nil,
	})
}

// Internal 未预期的内部错误，返回500
func Internal(c *gin.Context, err error) {
	_, message := errors.DecodeErr(err)
	c.JSON(http.StatusInternalServerError, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      ecode.InternalErr,
		Message:   message,
		Data:      nil,
	})
}

package webhook

import (
	"bytes"
	"io"

	"signalflow/internal/consts"
	"signalflow/internal/service"
	"signalflow/pkg/errors"
	"signalflow/pkg/errors/ecode"
	"signalflow/pkg/response"
	"signalflow/pkg/signature"

	"github.com/gin-gonic/gin"
)

// 信号入口。公共webhook走HMAC签名校验，鉴权入口走jwt，
// 两条路径最后都汇到SignalService.Process

type Handler struct {
	svc    *service.SignalService
	secret string // webhook共享密钥
}

func NewHandler(svc *service.SignalService, secret string) *Handler {
	return &Handler{svc: svc, secret: secret}
}

// HandlePublic 公共webhook入口（如TradingView alert）
// 签名必须针对原始body计算，所以这里自己读body，不走ShouldBind
func (h *Handler) HandlePublic() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.JSON(c, errors.Wrap(err, ecode.InvalidParams, "failed to read request body"), nil)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(raw))

		provided := c.GetHeader(consts.SignatureHeader)
		if !signature.Verify(raw, provided, h.secret) {
			response.RequireAuthErr(c, errors.New(ecode.SignatureErr, ""))
			return
		}

		result, err := h.svc.Process(c, raw, nil)
		if err != nil {
			h.renderError(c, err)
			return
		}
		response.JSON(c, nil, result)
	}
}

// HandleAuthenticated 登录态信号入口，身份由jwt中间件保证，不再要求签名
func (h *Handler) HandleAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.JSON(c, errors.Wrap(err, ecode.InvalidParams, "failed to read request body"), nil)
			return
		}

		uid := c.GetUint64(consts.UserID)
		if uid == 0 {
			response.RequireAuthErr(c, errors.New(ecode.RequireAuthErr, ""))
			return
		}

		result, err := h.svc.Process(c, raw, &uid)
		if err != nil {
			h.renderError(c, err)
			return
		}
		response.JSON(c, nil, result)
	}
}

func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.IsCode(err, ecode.OwnershipErr):
		response.Forbidden(c, err)
	case errors.IsCode(err, ecode.EnqueueErr), errors.IsCode(err, ecode.InternalErr):
		response.Internal(c, err)
	default:
		response.JSON(c, err, nil)
	}
}

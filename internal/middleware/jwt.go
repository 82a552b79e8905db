package middleware

import (
	"fmt"
	"strings"

	"signalflow/conf"
	"signalflow/internal/consts"
	"signalflow/pkg/errors"
	"signalflow/pkg/errors/ecode"
	"signalflow/pkg/jwt"
	"signalflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// 请求头的形式为 Authorization: Bearer token
const authorizationHeader = "Authorization"

// AuthToken 鉴权，验证用户token是否有效
// 黑名单显式注入，登出的token在过期前会被拦下
func AuthToken(blacklist *jwt.Blacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := getJwtFromHeader(c)
		if err != nil {
			response.RequireAuthErr(c, err)
			c.Abort()
			return
		}
		if blacklist.Contains(c, tokenStr) {
			response.RequireAuthErr(c, fmt.Errorf("token revoked"))
			c.Abort()
			return
		}
		// 验证token是否正确
		claims, err := jwt.ParseToken(tokenStr, conf.AppConfig.Jwt.Secret)
		if err != nil {
			response.RequireAuthErr(c, err)
			c.Abort()
			return
		}

		c.Set(consts.UserID, claims.UserId)
		c.Set(consts.JWTTokenCtx, tokenStr)
		c.Next()
	}
}

// AdminRequired 管理接口校验，必须挂在AuthToken之后
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.GetString(consts.JWTTokenCtx)
		claims, err := jwt.ParseToken(tokenStr, conf.AppConfig.Jwt.Secret)
		if err != nil || !claims.IsAdministrator() {
			response.Forbidden(c, errors.New(ecode.PermissionDeny, ""))
			c.Abort()
			return
		}
		c.Next()
	}
}

func getJwtFromHeader(c *gin.Context) (string, error) {
	aHeader := c.Request.Header.Get(authorizationHeader)
	if len(aHeader) == 0 {
		return "", fmt.Errorf("token is empty")
	}
	strs := strings.SplitN(aHeader, " ", 2)
	if len(strs) != 2 || strs[0] != "Bearer" {
		return "", fmt.Errorf("token 不符合规则")
	}
	return strs[1], nil
}

package middleware

import (
	"strconv"
	"time"

	"signalflow/internal/consts"
	"signalflow/pkg/response"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru"
)

// 限频。同一个key在interval窗口内只放行一次请求
// lru并发安全且容量封顶，key再多也不会吃光内存，被淘汰的key等价于窗口重置，
// 限频本来就是尽力而为的防护

// ByClientIP 公共webhook按来源ip限频
func ByClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// ByUser 鉴权接口按用户限频，取不到用户时退回ip
func ByUser(c *gin.Context) string {
	if uid := c.GetUint64(consts.UserID); uid > 0 {
		return "uid:" + strconv.FormatUint(uid, 10)
	}
	return ByClientIP(c)
}

// RateLimit interval<=0时不限频
func RateLimit(interval time.Duration, keyFn func(c *gin.Context) string) gin.HandlerFunc {
	seen, _ := lru.New(4096)
	return func(c *gin.Context) {
		if interval <= 0 {
			c.Next()
			return
		}
		key := keyFn(c)
		now := time.Now()
		if value, ok := seen.Get(key); ok {
			if last, ok := value.(time.Time); ok && now.Sub(last) < interval {
				response.TooManyRequests(c)
				c.Abort()
				return
			}
		}
		seen.Add(key, now)
		c.Next()
	}
}

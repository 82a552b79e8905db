package middleware

import (
	"github.com/gin-gonic/gin"
)

// Middleware 全局中间件装载器，满足cmd层的Router接口
type Middleware struct{}

func NewMiddleware() *Middleware {
	return &Middleware{}
}

func (m *Middleware) Load(g *gin.Engine) {
	g.Use(RequestId())
	g.Use(Logger)
	g.Use(NoCache())
	g.Use(Options())
	g.Use(Secure())
}

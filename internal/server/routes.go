package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *Admin) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.Appeared).String(),
			"service": a.Name,
		})
	})

	a.router.GET("/ready", func(c *gin.Context) {
		body := gin.H{
			"ready":   false,
			"service": a.Name,
		}
		if a.status == nil {
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["ready"] = a.status.Connected()
		body["state"] = a.status.State().String()
		body["version"] = a.status.ProtocolVersion()
		code := http.StatusOK
		if !a.status.Connected() {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, body)
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

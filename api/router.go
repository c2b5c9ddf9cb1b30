// Package api exposes scrape runs over HTTP.
package api

import (
	"net/http"
	"time"

	"farecraft/utils"

	"github.com/gin-gonic/gin"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(h *Handler, logger *utils.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))

	r.GET("/health", h.Health)

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/scrape", h.Submit)

		scrapes := apiGroup.Group("/scrapes")
		{
			scrapes.GET("", h.List)
			scrapes.GET("/latest", h.Latest)
			scrapes.GET("/compare", h.Compare)
			scrapes.GET("/:id", h.Get)
			scrapes.DELETE("/:id", h.Delete)
		}
	}

	return r
}

// RequestLogger logs one line per request with its status and latency.
func RequestLogger(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		log := logger.Info
		if status >= http.StatusInternalServerError {
			log = logger.Error
		}
		log("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, status, time.Since(start).Round(time.Microsecond))
	}
}

package controlplane

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yagualauncher/yagua/internal/controlplane/middleware"
	"github.com/yagualauncher/yagua/internal/version"
)

type RouteConfig struct {
	AuthToken string
	RateLimit string
}

func SetupRoutes(h *Handler, cfg RouteConfig) (http.Handler, error) {
	r := gin.New()

	rateLimit, err := middleware.RateLimit(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	r.Use(middleware.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.Secure())
	r.Use(middleware.CORS())
	r.Use(middleware.Gzip())
	r.Use(rateLimit)

	r.GET("/", IndexHandler)
	r.GET("/health", HealthHandler)

	v1 := r.Group("/v1")
	v1.Use(middleware.TokenAuth(cfg.AuthToken))
	{
		v1.GET("/status", h.Status)
		v1.GET("/events", h.Events)
		v1.POST("/update", h.Update)
		v1.POST("/launch", h.Launch)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	return r.Handler(), nil
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func IndexHandler(c *gin.Context) {
	c.JSON(http.StatusOK, version.Current())
}

func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package api

import (
	"github.com/gin-gonic/gin"
)

// NewRouter builds the HTTP host surface.
func NewRouter(h *WizardHandler, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if debug {
		router.Use(gin.Logger())
	}

	router.GET("/health", HealthCheck)
	h.RegisterRoutes(router)
	return router
}

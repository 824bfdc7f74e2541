package api

import (
	"github.com/gin-gonic/gin"

	"github.com/jgirmay/FORGE_GO/internal/preview"
)

// NewRouter builds the public preview API router
func NewRouter(registry *preview.Registry) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	RegisterRoutes(router, registry)
	return router
}

// RegisterRoutes registers all preview routes with the router
func RegisterRoutes(router *gin.Engine, registry *preview.Registry) {
	apiGroup := router.Group("/api/preview")

	handler := NewPreviewHandler(registry)
	handler.RegisterRoutes(apiGroup)
}

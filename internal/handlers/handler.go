package handlers

import (
	"kiln_controller/internal/logger"
	"kiln_controller/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler serves the kiln's read-only status API and the profile catalog.
// Runs are started and aborted locally, never over HTTP.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{services: services, log: log}
}

// InitRoutes builds the router.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", h.health)
	router.GET("/ws", h.wsConnect)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-in", h.signIn)
		// new operators are added by an existing one
		auth.POST("/sign-up", h.userIDMiddleware, h.signUp)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/status", h.getStatus)
		api.GET("/config", h.getConfig)

		profiles := api.Group("/profiles")
		profiles.GET("", h.listProfiles)
		profiles.GET("/:name", h.getProfile)
		profiles.POST("", h.userIDMiddleware, h.saveProfile)
		profiles.DELETE("/:name", h.userIDMiddleware, h.deleteProfile)
	}
}

package api

import (
	"github.com/gin-gonic/gin"

	"siteCMS/internal/api/middleware"
	"siteCMS/internal/auth"
)

// Handlers 汇总需要注册的处理器，为 nil 的处理器对应的路由不注册。
type Handlers struct {
	Auth     *AuthHandler
	Sections *SectionsHandler
	Uploads  *UploadHandler
	Ws       *WsHandler
}

// RegisterRoutes 注册公开页面、公开只读接口与管理端接口。
func RegisterRoutes(router *gin.Engine, adminAuth *auth.AdminAuth, h Handlers) {
	requireAdmin := middleware.AdminAuthMiddleware(adminAuth)

	router.GET("/", h.Sections.Homepage)
	router.GET("/api/home/sections", h.Sections.GetPublicSections)
	if h.Uploads != nil {
		router.GET("/media/*key", h.Uploads.Media)
	}

	router.GET("/admin/home/sections/preview", requireAdmin, h.Sections.Preview)

	admin := router.Group("/api/admin")
	admin.Use(middleware.SecurityHeaders())
	{
		admin.POST("/login", h.Auth.Login)
		admin.POST("/logout", h.Auth.Logout)
		admin.GET("/session", h.Auth.Session)

		protected := admin.Group("")
		protected.Use(requireAdmin)
		{
			protected.GET("/home/sections", h.Sections.GetSections)
			protected.PUT("/home/sections", h.Sections.PutSections)
			protected.GET("/home/published", h.Sections.GetPublished)

			if h.Uploads != nil {
				protected.POST("/uploads", h.Uploads.Upload)
				protected.GET("/uploads", h.Uploads.List)
				protected.DELETE("/uploads", h.Uploads.Delete)
			}
			if h.Ws != nil {
				protected.GET("/ws", h.Ws.HandleConnection)
			}
		}
	}
}

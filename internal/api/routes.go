package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Anumulaashok/resume-builder-backend/internal/api/middleware"
	"github.com/Anumulaashok/resume-builder-backend/internal/auth"
	"github.com/Anumulaashok/resume-builder-backend/internal/config"
	"github.com/Anumulaashok/resume-builder-backend/internal/resume"
)

// Dependencies 汇总注册路由所需的服务。
type Dependencies struct {
	Config        *config.Config
	DB            *gorm.DB
	Redis         *redis.Client
	Auth          *auth.AuthService
	Engine        *resume.Engine
	Resumes       *resume.Service
	Tasks         TaskEnqueuer
	Exports       ExportStateStore
	Storage       ExportStorage
	Logger        *slog.Logger
	AllowedOrigin []string
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	authMiddleware := middleware.AuthMiddleware(deps.Auth)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()

	authHandler := NewAuthHandler(deps.DB, deps.Auth, deps.Redis, deps.Logger, deps.Config.Auth)
	sectionHandler := NewSectionHandler(deps.Engine)
	resumeHandler := NewResumeHandler(deps.Resumes, deps.Tasks, deps.Exports, deps.Storage, deps.Config.API.ExportLinkTTL)
	templateHandler := NewTemplateHandler(deps.DB)
	wsHandler := NewWsHandler(deps.Redis, deps.Auth, deps.Logger, deps.AllowedOrigin)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/signup", authHandler.Signup)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		registerResumeRoutes(v1.Group("", authMiddleware, passwordGate), resumeHandler, sectionHandler, templateHandler)
	}
}

// registerResumeRoutes 注册需要登录且已完成改密的业务路由。
func registerResumeRoutes(protected *gin.RouterGroup, resumes *ResumeHandler, sections *SectionHandler, templates *TemplateHandler) {
	protected.GET("/sections/types", sections.GetSectionTypes)

	resumeGroup := protected.Group("/resumes")
	{
		resumeGroup.GET("", resumes.ListResumes)
		resumeGroup.POST("", resumes.CreateResume)
		resumeGroup.POST("/generate", resumes.GenerateResume)
		resumeGroup.GET("/:resumeId", resumes.GetResume)
		resumeGroup.PUT("/:resumeId", resumes.UpdateResume)
		resumeGroup.DELETE("/:resumeId", resumes.DeleteResume)
		resumeGroup.GET("/:resumeId/basics", resumes.GetBasics)
		resumeGroup.PUT("/:resumeId/basics", resumes.UpdateBasics)
		resumeGroup.POST("/:resumeId/summary", resumes.RegenerateSummary)
		resumeGroup.POST("/:resumeId/export", resumes.ExportResume)
		resumeGroup.GET("/:resumeId/export/link", resumes.GetExportLink)

		resumeGroup.GET("/:resumeId/sections", resumes.GetSections)
		resumeGroup.POST("/:resumeId/sections", sections.AddSection)
		resumeGroup.PUT("/:resumeId/sections/order", sections.UpdateSectionOrder)
		resumeGroup.PUT("/:resumeId/order", sections.UpdateSectionOrder)
		resumeGroup.GET("/:resumeId/sections/:sectionId", sections.GetSection)
		resumeGroup.PUT("/:resumeId/sections/:sectionId", sections.UpdateSection)
		resumeGroup.DELETE("/:resumeId/sections/:sectionId", sections.DeleteSection)
		resumeGroup.POST("/:resumeId/sections/:sectionId/items", sections.AddSectionItem)
		resumeGroup.PUT("/:resumeId/sections/:sectionId/items/:itemId", sections.UpdateSectionItem)
		resumeGroup.DELETE("/:resumeId/sections/:sectionId/items/:itemId", sections.DeleteSectionItem)
		resumeGroup.PATCH("/:resumeId/sections/:sectionId/items/:itemId/status", sections.ToggleItemStatus)
	}

	templateGroup := protected.Group("/templates")
	{
		templateGroup.POST("", templates.CreateTemplate)
		templateGroup.GET("/my", templates.ListMyTemplates)
		templateGroup.GET("/:templateId", templates.GetTemplate)
		templateGroup.PATCH("/:templateId", templates.UpdateTemplate)
		templateGroup.DELETE("/:templateId", templates.DeleteTemplate)
	}
}

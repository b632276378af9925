package app

import (
	"alpha_edu_backend/docs"
	"alpha_edu_backend/internal/config"
	"alpha_edu_backend/internal/middleware"
	"alpha_edu_backend/internal/model"
	"alpha_edu_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// Public routes.
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// Authenticated routes.
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/profile", c.auth.GetProfile)
		authGroup.GET("/dashboard", c.dashboard.Overview)

		exams := authGroup.Group("/exams")
		{
			exams.GET("", c.exam.ListExams)
			exams.GET("/:id", c.exam.GetExam)
			exams.POST("/:id/start", c.exam.StartExam)
			exams.PUT("/:id/progress", c.exam.SaveProgress)
			exams.POST("/:id/submit", c.exam.SubmitExam)
			exams.GET("/:id/analysis", c.exam.AnalyzeExam)
		}

		chat := authGroup.Group("/chat")
		{
			chat.GET("/limits", c.chat.CheckLimits)
			chat.GET("/conversations", c.chat.ListConversations)
			chat.POST("/conversations", c.chat.CreateConversation)
			chat.DELETE("/conversations/:id", c.chat.DeleteConversation)
			chat.PUT("/conversations/:id/pin", c.chat.TogglePin)
			chat.GET("/conversations/:id/messages", c.chat.GetMessages)
			chat.POST("/conversations/:id/messages", c.chat.SendMessage)
		}

		summarizer := authGroup.Group("/summarizer")
		{
			summarizer.POST("/file", c.summarizer.SummarizeFile)
			summarizer.GET("/history", c.summarizer.History)
		}

		generator := authGroup.Group("/generator")
		{
			generator.POST("/exams", c.generator.GenerateExam)
			generator.GET("/exams", c.generator.History)
			generator.GET("/exams/:id", c.generator.GetGeneratedExam)
		}
	}

	// Admin routes.
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		admin.POST("/exams", c.exam.CreateExam)
		admin.GET("/exams", c.exam.AdminListExams)
		admin.DELETE("/exams/:id", c.exam.DeleteExam)
	}
}

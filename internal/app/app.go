package app

import (
	"alpha_edu_backend/internal/config"
	"alpha_edu_backend/internal/controller"
	"alpha_edu_backend/internal/repository"
	"alpha_edu_backend/internal/service"
	"alpha_edu_backend/pkg/database"
	"alpha_edu_backend/pkg/logger"
	"alpha_edu_backend/pkg/monitoring"
	"alpha_edu_backend/pkg/security"
	"alpha_edu_backend/pkg/tracing"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	services *services
}

type repositories struct {
	user          *repository.UserRepository
	exam          *repository.ExamRepository
	chat          *repository.ChatRepository
	summary       *repository.SummaryRepository
	generatedExam *repository.GeneratedExamRepository
}

type services struct {
	auth       *service.AuthService
	storage    *service.StorageService
	ai         *service.AIService
	catalog    *service.ExamCatalogService
	sessions   *service.ExamSessionService
	analysis   *service.ExamAnalysisService
	chat       *service.ChatService
	summarizer *service.SummarizerService
	generator  *service.ExamGeneratorService
	dashboard  *service.DashboardService
}

type controllers struct {
	auth       *controller.AuthController
	exam       *controller.ExamController
	chat       *controller.ChatController
	summarizer *controller.SummarizerController
	generator  *controller.ExamGeneratorController
	dashboard  *controller.DashboardController
	health     *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:          repository.NewUserRepository(db),
		exam:          repository.NewExamRepository(db),
		chat:          repository.NewChatRepository(db, rdb),
		summary:       repository.NewSummaryRepository(db),
		generatedExam: repository.NewGeneratedExamRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.ai = service.NewAIService(cfg.AI)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.catalog = service.NewExamCatalogService(repos.exam)
	s.sessions = service.NewExamSessionService(repos.exam)
	s.analysis = service.NewExamAnalysisService(repos.exam, s.ai)
	s.chat = service.NewChatService(repos.chat, s.ai, cfg.Chat)
	s.summarizer = service.NewSummarizerService(repos.summary, s.storage, s.ai)
	s.generator = service.NewExamGeneratorService(repos.generatedExam, s.storage, s.ai)
	s.dashboard = service.NewDashboardService(repos.exam, repos.summary, repos.generatedExam)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		exam:       controller.NewExamController(s.catalog, s.sessions, s.analysis),
		chat:       controller.NewChatController(s.chat),
		summarizer: controller.NewSummarizerController(s.summarizer),
		generator:  controller.NewExamGeneratorController(s.generator),
		dashboard:  controller.NewDashboardController(s.dashboard),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// ReloadConfig is invoked by the config watcher; only the AI pipeline
// settings are safe to swap at runtime.
func (a *App) ReloadConfig(cfg *config.Config) {
	a.services.ai.UpdateConfig(cfg.AI)
	logger.Log.Info("AI pipeline config updated", zap.Strings("models", cfg.AI.Models))
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db, rdb)
	services := app.initServices(repos, cfg)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("alpha-edu-backend", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Log.Sync()
	log.Println("Server exiting")
}

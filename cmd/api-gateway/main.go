package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/fundacion-aprender/portal-api/api/swagger"
	"github.com/fundacion-aprender/portal-api/internal/handler"
	"github.com/fundacion-aprender/portal-api/internal/middleware"
	"github.com/fundacion-aprender/portal-api/internal/models"
	"github.com/fundacion-aprender/portal-api/internal/repository"
	"github.com/fundacion-aprender/portal-api/internal/service"
	"github.com/fundacion-aprender/portal-api/pkg/cache"
	"github.com/fundacion-aprender/portal-api/pkg/config"
	"github.com/fundacion-aprender/portal-api/pkg/database"
	"github.com/fundacion-aprender/portal-api/pkg/export"
	"github.com/fundacion-aprender/portal-api/pkg/jobs"
	"github.com/fundacion-aprender/portal-api/pkg/logger"
	"github.com/fundacion-aprender/portal-api/pkg/mailer"
	corsmiddleware "github.com/fundacion-aprender/portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/fundacion-aprender/portal-api/pkg/middleware/requestid"
	"github.com/fundacion-aprender/portal-api/pkg/storage"
)

// @title Portal de Capacitaciones API
// @version 1.0.0
// @description Enrollment, survey and certificate API for Fundación Aprender workshops
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	certStore, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare certificate storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)

	validate := validator.New()
	metricsService := service.NewMetricsService()

	var cacheRepo *repository.CacheRepository
	if cfg.Catalog.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Catalog.CacheTTL, logr, cacheRepo != nil)

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	workshopRepo := repository.NewWorkshopRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	surveyRepo := repository.NewSurveyRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)

	var notifier service.Notifier
	if cfg.Notifications.Enabled {
		notifier = mailer.NewSendGridMailer(cfg.Notifications.SendGridKey, cfg.Notifications.FromName, cfg.Notifications.FromEmail)
	}
	effects := service.NewEffects(userRepo, notifier, logr, jobs.QueueConfig{
		Workers:    cfg.Notifications.QueueWorkers,
		MaxRetries: cfg.Notifications.QueueRetries,
	})
	effects.Start(context.Background())
	defer effects.Stop()

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "portal-api",
	})
	userService := service.NewUserService(userRepo, validate, logr)
	courseService := service.NewCourseService(courseRepo, cacheService, validate, logr)
	ledger := service.NewCapacityLedger(enrollmentRepo)
	workshopService := service.NewWorkshopService(workshopRepo, courseRepo, enrollmentRepo, cacheService, validate, effects, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, workshopRepo, ledger, metricsService, effects, logr)
	surveyService := service.NewSurveyService(surveyRepo, workshopRepo, enrollmentRepo, validate, metricsService, effects, logr)
	certificateService := service.NewCertificateService(certificateRepo, enrollmentRepo, workshopRepo, userRepo, surveyRepo, certStore, export.NewCertificateRenderer(), metricsService, effects, cfg.Notifications.FromName, logr)
	exportService := service.NewExportService(enrollmentRepo, surveyRepo, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	courseHandler := handler.NewCourseHandler(courseService)
	workshopHandler := handler.NewWorkshopHandler(workshopService)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService)
	surveyHandler := handler.NewSurveyHandler(surveyService)
	certificateHandler := handler.NewCertificateHandler(certificateService, signer, certStore)
	exportHandler := handler.NewExportHandler(exportService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(503, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(200, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleModerator)
	admin := middleware.RequireRoles(models.RoleAdmin)

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/forgot-password", authHandler.ForgotPassword)
			auth.POST("/reset-password", authHandler.ResetPassword)
			auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
			auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)
			auth.GET("/me", middleware.JWT(authService), authHandler.Me)
		}

		api.GET("/courses", middleware.OptionalJWT(authService), courseHandler.List)
		api.GET("/courses/:id", middleware.OptionalJWT(authService), courseHandler.Get)
		api.GET("/workshops", middleware.OptionalJWT(authService), workshopHandler.List)
		api.GET("/workshops/:id", workshopHandler.Get)
		api.GET("/certificates/download", certificateHandler.DownloadSigned)

		authed := api.Group("", middleware.JWT(authService))
		{
			authed.POST("/workshops/:id/enrollments", enrollmentHandler.Enroll)
			authed.DELETE("/workshops/:id/enrollments", enrollmentHandler.Withdraw)
			authed.GET("/workshops/:id/survey", surveyHandler.Get)
			authed.POST("/workshops/:id/survey", surveyHandler.Submit)
			authed.GET("/certificates/:id/download", certificateHandler.Download)
			authed.POST("/certificates/:id/link", certificateHandler.Link)
		}

		staffRoutes := api.Group("", middleware.JWT(authService), staff)
		{
			staffRoutes.POST("/courses", courseHandler.Create)
			staffRoutes.PUT("/courses/:id", courseHandler.Update)
			staffRoutes.POST("/workshops", workshopHandler.Create)
			staffRoutes.PUT("/workshops/:id/status", workshopHandler.UpdateStatus)
			staffRoutes.PUT("/workshops/:id/capacity", workshopHandler.UpdateCapacity)
			staffRoutes.GET("/enrollments", enrollmentHandler.List)
			staffRoutes.PUT("/enrollments/:id/attendance", enrollmentHandler.SetAttendance)
			staffRoutes.DELETE("/workshops/:id/enrollments/:userId", enrollmentHandler.WithdrawUser)
			staffRoutes.GET("/workshops/:id/certificates", certificateHandler.ListByWorkshop)
			staffRoutes.GET("/workshops/:id/survey/results", surveyHandler.Results)
			staffRoutes.POST("/certificates/approve", certificateHandler.Approve)
			staffRoutes.POST("/certificates/revoke", certificateHandler.Revoke)
			staffRoutes.POST("/surveys/templates", surveyHandler.CreateTemplate)
			staffRoutes.PUT("/surveys/templates/:id/activate", surveyHandler.ActivateTemplate)
			if cfg.Exports.Enabled {
				exportAudit := middleware.Audit(userRepo, models.AuditActionExport, "exports")
				staffRoutes.GET("/exports/enrollments", exportAudit, exportHandler.Enrollments)
				staffRoutes.GET("/exports/survey-results", exportAudit, exportHandler.SurveyResults)
			}
		}

		adminRoutes := api.Group("", middleware.JWT(authService), admin)
		{
			adminRoutes.GET("/users", userHandler.List)
			adminRoutes.GET("/users/:id", userHandler.Get)
			adminRoutes.POST("/users", userHandler.Create)
			adminRoutes.PUT("/users/:id", userHandler.Update)
			adminRoutes.DELETE("/users/:id", userHandler.Delete)
			adminRoutes.GET("/status", metricsHandler.Status)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

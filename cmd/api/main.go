package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/quizhall/quizhall-api/api/swagger"
	"github.com/quizhall/quizhall-api/internal/handler"
	"github.com/quizhall/quizhall-api/internal/middleware"
	"github.com/quizhall/quizhall-api/internal/models"
	"github.com/quizhall/quizhall-api/internal/repository"
	"github.com/quizhall/quizhall-api/internal/service"
	"github.com/quizhall/quizhall-api/pkg/cache"
	"github.com/quizhall/quizhall-api/pkg/config"
	"github.com/quizhall/quizhall-api/pkg/database"
	"github.com/quizhall/quizhall-api/pkg/jobs"
	"github.com/quizhall/quizhall-api/pkg/logger"
	corsmiddleware "github.com/quizhall/quizhall-api/pkg/middleware/cors"
	reqidmiddleware "github.com/quizhall/quizhall-api/pkg/middleware/requestid"
	"github.com/quizhall/quizhall-api/pkg/storage"
)

// @title QuizHall API
// @version 1.0.0
// @description Exam sessions, answer capture and manual grading with an immutable audit trail
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	examRepo := repository.NewExamRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	answerRepo := repository.NewAnswerRepository(db)
	gradeEditRepo := repository.NewGradeEditRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "quizhall-api",
	})
	examSvc := service.NewExamService(examRepo, questionRepo, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, answerRepo, examRepo, questionRepo, validate, logr)
	scoringSvc := service.NewScoringService(answerRepo, sessionRepo, logr)
	gradingSvc := service.NewGradingService(sessionRepo, questionRepo, answerRepo, gradeEditRepo, cacheRepo, validate, logr, service.GradingConfig{
		WorklistCacheEnabled: cfg.Grading.WorklistCacheEnabled,
		WorklistCacheTTL:     cfg.Grading.WorklistCacheTTL,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exportSvc := service.NewExportService(sessionRepo, answerRepo, questionRepo, examRepo, userRepo, gradeEditRepo, store, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Reports.SignedURLTTL,
		}, logr)
		worker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
		queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()

		reportSvc = service.NewReportService(reportRepo, sessionRepo, queue, exportSvc, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		})
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	examHandler := handler.NewExamHandler(examSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	gradingHandler := handler.NewGradingHandler(gradingSvc, scoringSvc, metricsSvc)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if !cfg.IsProduction() {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	exams := api.Group("/exams", middleware.JWT(authSvc))
	exams.GET("", examHandler.List)
	exams.GET("/:id", examHandler.Get)
	exams.POST("", middleware.RequireRoles(models.RoleAdmin), examHandler.Create)
	exams.POST("/:id/questions", middleware.RequireRoles(models.RoleAdmin), examHandler.AddQuestion)

	sessions := api.Group("/sessions", middleware.JWT(authSvc))
	sessions.POST("", sessionHandler.Start)
	sessions.GET("", sessionHandler.ListMine)
	sessions.GET("/:id", sessionHandler.Get)
	sessions.PUT("/:id/answers", sessionHandler.SaveAnswer)
	sessions.POST("/:id/submit",
		middleware.Audit(userRepo, models.AuditActionSubmit, "session"),
		sessionHandler.Submit)

	grading := api.Group("/grading", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleExpert))
	grading.GET("/worklist", gradingHandler.Worklist)
	grading.GET("/sessions/:id/history", gradingHandler.History)
	grading.POST("/sessions/:id/recompute", gradingHandler.Recompute)
	grading.POST("/sessions/:id/edits",
		middleware.Audit(userRepo, models.AuditActionGradeEdit, "grade"),
		gradingHandler.EditGrade)

	if reportSvc != nil {
		reportHandler := handler.NewReportHandler(reportSvc)
		reports := api.Group("/reports")
		reports.GET("/download/:token", reportHandler.Download)
		reports.POST("", middleware.JWT(authSvc),
			middleware.Audit(userRepo, models.AuditActionReportBuild, "report"),
			reportHandler.Create)
		reports.GET("/:id", middleware.JWT(authSvc), reportHandler.Status)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
}

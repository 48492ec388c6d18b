package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/campus-outpass-api/api/swagger"
	"github.com/noah-isme/campus-outpass-api/internal/handler"
	"github.com/noah-isme/campus-outpass-api/internal/middleware"
	"github.com/noah-isme/campus-outpass-api/internal/models"
	"github.com/noah-isme/campus-outpass-api/internal/repository"
	"github.com/noah-isme/campus-outpass-api/internal/service"
	"github.com/noah-isme/campus-outpass-api/pkg/cache"
	"github.com/noah-isme/campus-outpass-api/pkg/config"
	"github.com/noah-isme/campus-outpass-api/pkg/database"
	"github.com/noah-isme/campus-outpass-api/pkg/export"
	"github.com/noah-isme/campus-outpass-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-outpass-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-outpass-api/pkg/middleware/requestid"
)

// @title Campus Outpass API
// @version 1.0.0
// @description Gate-pass approval workflow for campus exits
// @BasePath /
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, list cache disabled", "error", err)
	} else {
		defer redisClient.Close() //nolint:errcheck
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, cfg.Outpass.ListCacheTTL, logr, true)
	}

	userRepo := repository.NewUserRepository(db)
	outpassRepo := repository.NewOutpassRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	authSvc := service.NewAuthService(userRepo, auditRepo, nil, logr, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})
	outpassSvc := service.NewOutpassService(outpassRepo, userRepo, auditRepo, logr, service.OutpassConfig{
		OTPTTL:        cfg.Outpass.OTPTTL,
		SweepInterval: cfg.Outpass.SweepInterval,
		ListCacheTTL:  cfg.Outpass.ListCacheTTL,
	}, service.WithCache(cacheSvc), service.WithMetrics(metricsSvc))
	exportSvc := service.NewOutpassExportService(outpassSvc, export.NewPDFExporter(), export.NewCSVExporter())

	outpassSvc.StartSweeper(ctx)

	authHandler := handler.NewAuthHandler(authSvc)
	outpassHandler := handler.NewOutpassHandler(outpassSvc, exportSvc)
	approvalHandler := handler.NewApprovalHandler(outpassSvc)
	gateHandler := handler.NewGateHandler(outpassSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/signup", authHandler.Signup)
	auth.POST("/login", authHandler.Login)

	student := api.Group("/student/outpass", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleStudent))
	student.POST("/request", outpassHandler.Create)
	student.GET("/mine", outpassHandler.Mine)
	student.GET("/:id", outpassHandler.Get)
	student.GET("/:id/slip", outpassHandler.Slip)

	teacher := api.Group("/teacher/outpass", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleTeacher))
	teacher.GET("/assigned", approvalHandler.TeacherAssigned)
	teacher.POST("/approve/:id", approvalHandler.TeacherApprove)
	teacher.POST("/reject/:id", approvalHandler.TeacherReject)

	hod := api.Group("/hod/outpass", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleHod))
	hod.GET("/assigned", approvalHandler.HodAssigned)
	hod.POST("/approve/:id", approvalHandler.HodApprove)
	hod.POST("/reject/:id", approvalHandler.HodReject)
	hod.POST("/:id/regenerate-otp", approvalHandler.RegenerateOTP)

	security := api.Group("/security/outpass", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleSecurity))
	security.POST("/verify", gateHandler.Verify)
	security.GET("/expired", gateHandler.Expired)
	security.GET("/expired.csv", gateHandler.ExpiredCSV)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Sugar().Infow("server stopped")
}

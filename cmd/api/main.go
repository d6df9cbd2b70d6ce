package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/novandi/sis-core-api/internal/handler"
	"github.com/novandi/sis-core-api/internal/middleware"
	"github.com/novandi/sis-core-api/internal/models"
	"github.com/novandi/sis-core-api/internal/repository"
	"github.com/novandi/sis-core-api/internal/service"
	"github.com/novandi/sis-core-api/pkg/cache"
	"github.com/novandi/sis-core-api/pkg/config"
	"github.com/novandi/sis-core-api/pkg/database"
	"github.com/novandi/sis-core-api/pkg/logger"
	corsmiddleware "github.com/novandi/sis-core-api/pkg/middleware/cors"
	reqidmiddleware "github.com/novandi/sis-core-api/pkg/middleware/requestid"
)

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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	// Redis is an accelerator only. A missing cache degrades to database
	// reads instead of blocking startup.
	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
			redisClient = nil
		}
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	classRepo := repository.NewClassRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	policy := service.NewAccessPolicy(enrollmentRepo)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, courseRepo, cacheRepo, validate, logr, cfg.Cache.ClassTTL)
	lessonSvc := service.NewLessonService(lessonRepo, classRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, cacheRepo, metricsSvc, validate, logr, cfg.Enrollment.MaxRetries, cfg.Cache.ClassTTL)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, lessonRepo, studentRepo, enrollmentRepo, metricsSvc, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	classHandler := handler.NewClassHandler(classSvc, policy)
	lessonHandler := handler.NewLessonHandler(lessonSvc, classSvc, policy)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, classSvc, policy)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, lessonSvc, classSvc, policy)

	if cfg.Env == config.EnvProduction {
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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("", middleware.JWT(authSvc))
	authed.GET("/auth/me", authHandler.Me)

	authed.GET("/courses", courseHandler.List)
	authed.GET("/courses/:id", courseHandler.Get)
	authed.POST("/courses", middleware.RequireRoles(models.RoleAdmin), courseHandler.Create)

	authed.GET("/classes", classHandler.List)
	authed.GET("/classes/:id", classHandler.Get)
	authed.POST("/classes", middleware.RequireRoles(models.RoleAdmin), classHandler.Create)
	authed.PUT("/classes/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), classHandler.Update)
	authed.PATCH("/classes/:id/active", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), classHandler.SetActive)

	authed.GET("/classes/:id/seats", enrollmentHandler.Seats)
	authed.GET("/classes/:id/roster", enrollmentHandler.Roster)
	authed.POST("/classes/:id/enroll", middleware.RequireRoles(models.RoleAdmin, models.RoleStudent), enrollmentHandler.Enroll)
	authed.POST("/classes/:id/unenroll", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleStudent), enrollmentHandler.Unenroll)
	authed.GET("/enrollments", enrollmentHandler.List)

	authed.GET("/classes/:id/lessons", lessonHandler.ListByClass)
	authed.GET("/lessons/:id", lessonHandler.Get)
	authed.POST("/lessons", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), lessonHandler.Create)
	authed.PUT("/lessons/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), lessonHandler.Update)
	authed.PATCH("/lessons/:id/cancelled", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), lessonHandler.SetCancelled)

	authed.GET("/lessons/:id/attendance", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), attendanceHandler.List)
	authed.POST("/lessons/:id/attendance", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), attendanceHandler.Record)
	authed.GET("/lessons/:id/attendance/export", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), attendanceHandler.Export)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

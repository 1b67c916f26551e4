package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "carepackage/api/swagger" // swagger docs
	"carepackage/internal/clock"
	"carepackage/internal/config"
	"carepackage/internal/database"
	"carepackage/internal/handler"
	"carepackage/internal/middleware"
	"carepackage/internal/model"
	"carepackage/internal/repository"
	"carepackage/internal/service"
	"carepackage/internal/websocket"
	"carepackage/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Care Package API
// @version         1.0
// @description     Lifecycle of brokered care packages: referrals, elements, approvals and care charges.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewConnection(cfg.DSN(), !cfg.IsProduction())
	if err != nil {
		log.Fatal("database connection failed", "error", err)
	}
	log.Info("connected to PostgreSQL")

	ctx := context.Background()
	roleRepo := repository.NewRoleRepository(db)
	if err := database.SeedRolesAndPermissions(ctx, roleRepo); err != nil {
		log.Fatal("seeding roles failed", "error", err)
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	userRepo := repository.NewUserRepository(db)
	deps := service.Deps{
		Referrals: repository.NewReferralRepository(db),
		Elements:  repository.NewElementRepository(db),
		Lookups:   repository.NewLookupRepository(db),
		Users:     userRepo,
		Audits:    repository.NewAuditRepository(db),
		Tx:        repository.NewTransactionManager(db),
		Clock:     clock.System{},
		Notifier:  wsHub,
		Log:       log,
	}
	userService := service.NewUserService(userRepo, cfg.JWTSecret, deps.Clock)
	referralService := service.NewReferralService(deps)
	elementService := service.NewElementService(deps)
	auditService := service.NewAuditService(deps.Audits)

	if err := bootstrapAdmin(ctx, cfg, userService); err != nil {
		log.Fatal("creating admin user failed", "error", err)
	}

	auth := middleware.NewAuth(cfg.JWTSecret, cfg.IsProduction(), roleRepo)

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService, auth)
	referralHandler := handler.NewReferralHandler(referralService, auth)
	elementHandler := handler.NewElementHandler(elementService, auth)
	auditHandler := handler.NewAuditHandler(auditService, auth)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, auth.Secret())
	})

	// API Routing
	userHandler.RegisterRoutes(router.Group(""))
	api := router.Group("/api")
	referralHandler.RegisterRoutes(api)
	elementHandler.RegisterRoutes(api)
	auditHandler.RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	wsHub.Stop()
}

// bootstrapAdmin creates the configured admin account on first start so a
// fresh deployment has someone who can add brokers and approvers.
func bootstrapAdmin(ctx context.Context, cfg *config.Config, users service.UserService) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}
	_, err := users.CreateUser(ctx, service.CreateUserRequest{
		Name:     "Administrator",
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Role:     model.RoleAdmin,
	})
	if errors.Is(err, service.ErrEmailTaken) {
		return nil
	}
	return err
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"taskboard/docs"
	"taskboard/internal/config"
	"taskboard/internal/handler"
	"taskboard/internal/hub"
	"taskboard/internal/logger"
	"taskboard/internal/middleware"
	"taskboard/internal/migrations"
	"taskboard/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	Engine *gin.Engine
	DB     *gorm.DB
	Config *config.Config
	Hub    *hub.Hub

	redis     *redis.Client
	announcer *hub.RedisAnnouncer
}

// Init connects to the database, applies migrations and builds the server.
func Init(cfg *config.Config) (*Server, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	log.Info("connected to database")

	if err := migrations.Up(cfg.MigrateURL(), logger.For("migrate")); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	var rc *redis.Client
	if cfg.RedisAddr != "" {
		rc = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	return Build(db, rc, cfg)
}

// Build wires repositories, handlers and the live hub onto a gin engine.
// rc may be nil, in which case changes are only broadcast locally.
func Build(db *gorm.DB, rc *redis.Client, cfg *config.Config) (*Server, error) {
	if err := handler.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics())

	userRepo := repository.NewUserRepository(db)
	boardRepo := repository.NewBoardRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	h := hub.New(boardRepo, taskRepo, logger.For("hub"))
	var announcer handler.Announcer = h
	var fanout *hub.RedisAnnouncer
	if rc != nil {
		fanout = hub.NewRedisAnnouncer(rc, cfg.RedisChannel, h, logger.For("fanout"))
		announcer = fanout
	}

	userHandler := handler.NewUserHandler(userRepo, cfg.JWTSecret, cfg.JWTTTL, logger.For("users"))
	boardHandler := handler.NewBoardHandler(boardRepo)
	taskHandler := handler.NewTaskHandler(taskRepo, boardRepo, announcer, logger.For("tasks"))

	// Public routes
	r.POST("/register", userHandler.Register)
	r.POST("/login", userHandler.Login)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	docs.SwaggerInfo.BasePath = "/"
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Protected routes - require authentication
	authorized := r.Group("/")
	authorized.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	{
		authorized.GET("/me", userHandler.Me)
		authorized.POST("/users", userHandler.CreateUser)

		authorized.GET("/boards", boardHandler.GetAll)
		authorized.POST("/boards", boardHandler.Create)
		authorized.GET("/boards/:id/tasks", boardHandler.Tasks)

		authorized.POST("/boards/:id/tasks", taskHandler.Create)
		authorized.PUT("/tasks/:id", taskHandler.Update)
		authorized.DELETE("/tasks/:id", taskHandler.Delete)
		authorized.PATCH("/tasks/:id/status", taskHandler.UpdateStatus)

		authorized.GET("/ws", h.ServeWS)
	}

	return &Server{
		Engine:    r,
		DB:        db,
		Config:    cfg,
		Hub:       h,
		redis:     rc,
		announcer: fanout,
	}, nil
}

// Run serves HTTP and, when configured, the redis listener until SIGINT or
// SIGTERM, then shuts both down.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve runs until ctx is cancelled or a component fails.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    ":" + s.Config.ServerPort,
		Handler: s.Engine,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", s.Config.ServerPort).Info("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to listen: %w", err)
		}
		return nil
	})
	if s.announcer != nil {
		g.Go(func() error {
			return s.announcer.Listen(gctx, s.Hub)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		return s.shutdown(srv)
	})

	err := g.Wait()
	if err == nil {
		log.Info("server exited properly")
	}
	return err
}

func (s *Server) shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var result *multierror.Error
	s.Hub.Close()
	if err := srv.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("redis close: %w", err))
		}
	}
	if sqlDB, err := s.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("db close: %w", err))
		}
	}
	return result.ErrorOrNil()
}

package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz_backend/internal/config"
	"quiz_backend/internal/controller"
	"quiz_backend/internal/event"
	"quiz_backend/internal/middleware"
	"quiz_backend/internal/repository"
	"quiz_backend/internal/repository/mongostore"
	"quiz_backend/internal/service"
	"quiz_backend/pkg/configwatcher"
	"quiz_backend/pkg/database"
	"quiz_backend/pkg/logger"
	"quiz_backend/pkg/monitoring"
	"quiz_backend/pkg/security"
	"quiz_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Mongo    *mongo.Client
	Redis    *redis.Client
	Events   event.Publisher
	Tracer   *sdktrace.TracerProvider
	Cron     *cron.Cron
	services *services

	configCallbacks []func(*config.Config)
}

type repositories struct {
	quiz    repository.QuizStore
	attempt repository.AttemptStore
	user    repository.UserStore
}

type services struct {
	auth    *service.AuthService
	user    *service.UserService
	quiz    *service.QuizService
	attempt *service.AttemptService
}

type controllers struct {
	auth    *controller.AuthController
	quiz    *controller.QuizController
	attempt *controller.AttemptController
	health  *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// initStorage 按 database.driver 选择 SQL 或 MongoDB 后端
func (a *App) initStorage(ctx context.Context, cfg *config.Config) (*repositories, error) {
	if cfg.Database.Driver == config.DriverMongo {
		client, db, err := database.InitMongo(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		a.Mongo = client

		stores := mongostore.New(db)
		if err := stores.InitializeIndexes(ctx); err != nil {
			return nil, err
		}
		return &repositories{quiz: stores.Quizzes, attempt: stores.Attempts, user: stores.Users}, nil
	}

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		return nil, err
	}
	a.DB = db

	// release 模式默认不自动迁移，需显式 -migrate
	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
	}

	return &repositories{
		quiz:    repository.NewQuizRepository(db),
		attempt: repository.NewAttemptRepository(db),
		user:    repository.NewUserRepository(db),
	}, nil
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	s.user = service.NewUserService(repos.user)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.quiz = service.NewQuizService(repos.quiz, repos.attempt, a.Redis, a.Events, cfg.Quiz.ViewCacheTTL())
	s.attempt = service.NewAttemptService(
		repos.quiz,
		repos.attempt,
		repos.user,
		s.user,
		s.quiz,
		a.Events,
		cfg.Quiz,
	)

	return s
}

func (a *App) initControllers(s *services, cfg *config.Config) *controllers {
	return &controllers{
		auth:    controller.NewAuthController(s.auth),
		quiz:    controller.NewQuizController(s.quiz, s.user, cfg.Quiz.DefaultPageSize, cfg.Quiz.MaxPageSize),
		attempt: controller.NewAttemptController(s.attempt, cfg.Quiz.DefaultPageSize, cfg.Quiz.MaxPageSize),
		health:  controller.NewHealthController(a.ping),
	}
}

func (a *App) ping(ctx context.Context) error {
	if a.Mongo != nil {
		return a.Mongo.Ping(ctx, readpref.Primary())
	}
	if a.DB == nil {
		return errors.New("database not initialized")
	}
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (a *App) identityProvider(cfg *config.Config) middleware.IdentityProvider {
	if cfg.Auth.IntrospectionURL != "" {
		timeout := time.Duration(cfg.Auth.TimeoutSeconds) * time.Second
		logger.Log.Info("Using remote identity provider", zap.String("url", cfg.Auth.IntrospectionURL))
		return middleware.NewRemoteProvider(cfg.Auth.IntrospectionURL, timeout)
	}
	return middleware.NewJWTProvider(cfg.JWT.Secret)
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 超时答题的定期清扫，expiry_sweep 为空时不启动
func (a *App) startBackgroundTasks(s *services, cfg *config.Config) {
	if cfg.Quiz.ExpirySweep == "" {
		return
	}

	c := cron.New()
	_, err := c.AddFunc(cfg.Quiz.ExpirySweep, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		n, err := s.attempt.ExpireOverdue(ctx, "")
		if err != nil {
			logger.Log.Error("Expiry sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Log.Info("Expiry sweep finished", zap.Int("expired", n))
		}
	})
	if err != nil {
		logger.Log.Error("Invalid expiry sweep schedule", zap.String("spec", cfg.Quiz.ExpirySweep), zap.Error(err))
		return
	}
	c.Start()
	a.Cron = c
	logger.Log.Info("Expiry sweep scheduled", zap.String("spec", cfg.Quiz.ExpirySweep))
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	app := &App{Config: cfg}

	repos, err := app.initStorage(context.Background(), cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	if cfg.MigrateOnly {
		return app
	}

	// Redis 只用作测验视图缓存，不可用时降级为无缓存
	if cfg.Redis.Enabled {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Warn("Redis unavailable, quiz view cache disabled", zap.Error(err))
		} else {
			app.Redis = rdb
		}
	}

	app.Events = app.initEvents(cfg)

	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("quiz-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.Tracer = tp
	}

	controller.RegisterValidators()

	services := app.initServices(repos, cfg)
	app.services = services
	controllers := app.initControllers(services, cfg)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, repos, app.identityProvider(cfg))

	app.RegisterConfigCallback(func(newCfg *config.Config) {
		services.attempt.SetPolicy(newCfg.Quiz)
		logger.Log.Info("Quiz policy reloaded",
			zap.Int("max_start_retries", newCfg.Quiz.MaxStartRetries),
			zap.Int("retry_backoff_ms", newCfg.Quiz.RetryBackoffMs),
			zap.Bool("enforce_time_limit", newCfg.Quiz.EnforceTimeLimit),
		)
	})

	app.startBackgroundTasks(services, cfg)

	return app
}

func (a *App) initEvents(cfg *config.Config) event.Publisher {
	url := ""
	if cfg.Events.Enabled {
		url = cfg.Events.URL
	}
	publisher, err := event.NewEventPublisher(url, cfg.Events.Exchange)
	if err != nil {
		logger.Log.Warn("Event publisher unavailable, events disabled", zap.Error(err))
		publisher, _ = event.NewEventPublisher("", cfg.Events.Exchange)
	}
	return publisher
}

func (a *App) watchConfig(ctx context.Context) {
	if a.Config.ConfigFile == "" || len(a.configCallbacks) == 0 {
		return
	}
	go func() {
		err := configwatcher.WatchConfig(ctx, a.Config.ConfigFile, func(newCfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(newCfg)
			}
		})
		if err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	a.watchConfig(watchCtx)

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")
	stopWatch()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.Close(ctx)
	logger.Log.Info("Server exiting")
}

// Close 释放后台任务与外部连接
func (a *App) Close(ctx context.Context) {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			logger.Log.Warn("Failed to close event publisher", zap.Error(err))
		}
	}
	if a.Tracer != nil {
		if err := a.Tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Mongo != nil {
		if err := a.Mongo.Disconnect(ctx); err != nil {
			logger.Log.Warn("Failed to disconnect MongoDB", zap.Error(err))
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

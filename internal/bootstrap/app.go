package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "github.com/PRISSET/Dev-Planner/internal/handler/http"
	wsHandler "github.com/PRISSET/Dev-Planner/internal/handler/websocket"
	"github.com/PRISSET/Dev-Planner/internal/hub"
	gormpersistence "github.com/PRISSET/Dev-Planner/internal/infra/persistence/gorm"
	"github.com/PRISSET/Dev-Planner/internal/infra/setup"
	"github.com/PRISSET/Dev-Planner/internal/middleware"
	"github.com/PRISSET/Dev-Planner/internal/repository"
	"github.com/PRISSET/Dev-Planner/internal/service"
	"github.com/PRISSET/Dev-Planner/internal/tasks"
	"github.com/PRISSET/Dev-Planner/internal/worker"
)

// Config holds everything read from the environment. Redis and the
// database are optional: without Redis there is no rate limiting, task
// queue or idle sweep; without the database there is no session-event
// journal. Rooms always live purely in memory.
type Config struct {
	ServerPort string
	AppEnv     string
	LogLevel   string
	CORSOrigin string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	RateLimitMax     int
	RateLimitWindow  time.Duration
	RoomIdleTTL      time.Duration
	JournalRetention time.Duration
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// DBEnabled reports whether the journal database is configured.
func (c *Config) DBEnabled() bool { return c.DBUser != "" && c.DBName != "" }

// LoadConfig reads configuration from a .env file (if present) and the
// environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:    os.Getenv("SERVER_PORT"),
		AppEnv:        os.Getenv("APP_ENV"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		CORSOrigin:    os.Getenv("CORS_ALLOWED_ORIGIN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBHost:        os.Getenv("DB_HOST"),
		DBPort:        os.Getenv("DB_PORT"),
		DBName:        os.Getenv("DB_NAME"),

		RateLimitMax:     100,
		RateLimitWindow:  1 * time.Second,
		RoomIdleTTL:      0,
		JournalRetention: 30 * 24 * time.Hour,
	}

	cfg.RedisDB, _ = strconv.Atoi(os.Getenv("REDIS_DB"))

	if cfg.ServerPort == "" {
		cfg.ServerPort = "3005"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	if cfg.DBHost == "" {
		cfg.DBHost = "127.0.0.1"
	}
	if cfg.DBPort == "" {
		cfg.DBPort = "3306"
	}
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitMax = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if window, err := time.ParseDuration(v); err == nil && window > 0 {
			cfg.RateLimitWindow = window
		}
	}
	if v := os.Getenv("ROOM_IDLE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ROOM_IDLE_TTL %q: %w", v, err)
		}
		cfg.RoomIdleTTL = ttl
	}
	if v := os.Getenv("JOURNAL_RETENTION"); v != "" {
		retention, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid JOURNAL_RETENTION %q: %w", v, err)
		}
		cfg.JournalRetention = retention
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	if cfg.DBEnabled() && !cfg.RedisEnabled() {
		return nil, errors.New("the session-event journal requires REDIS_ADDR for the task queue")
	}

	return cfg, nil
}

// App wires the broker together: registry, hub, HTTP server and the
// optional worker pipeline.
type App struct {
	Config      *Config
	Log         *logrus.Logger
	Collab      *service.CollabService
	Hub         *hub.Hub
	HttpServer  *http.Server
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	Worker      *worker.WorkerServer

	redisClientOpt asynq.RedisClientOpt
	scheduler      *asynq.Scheduler
}

// NewApp creates and wires all application components.
func NewApp() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	log := logrus.StandardLogger()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	log.Info("Configuration loaded")

	app := &App{Config: cfg, Log: log}

	if cfg.RedisEnabled() {
		app.RedisClient, err = setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to init Redis: %w", err)
		}
		app.redisClientOpt = asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
		app.AsynqClient = asynq.NewClient(app.redisClientOpt)
		log.Info("Redis and task queue initialized")
	} else {
		log.Info("REDIS_ADDR not set; rate limiting, journal and idle sweep disabled")
	}

	journal := hub.Journal(hub.NopJournal{})
	if cfg.DBEnabled() {
		app.DB, err = setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, fmt.Errorf("failed to init DB: %w", err)
		}
		if err := setup.MigrateDB(app.DB); err != nil {
			return nil, fmt.Errorf("failed to migrate DB: %w", err)
		}
		journal = worker.NewAsynqJournal(app.AsynqClient)
		log.Info("Session-event journal initialized")
	}

	app.Collab = service.NewCollabService()
	app.Hub = hub.NewHub(app.Collab, journal)

	if cfg.RedisEnabled() {
		var journalRepo repository.JournalRepository
		if cfg.DBEnabled() {
			journalRepo = gormpersistence.NewGormJournalRepository(app.DB)
		}
		app.Worker = worker.NewWorkerServer(app.redisClientOpt, journalRepo, app.Hub, cfg.RoomIdleTTL, cfg.JournalRetention, log)
	}

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(corsMiddleware(cfg.CORSOrigin))

	roomHandler := httpHandler.NewRoomHandler(app.Collab, app.Hub)
	socketHandler := wsHandler.NewHandler(app.Hub)

	api := router.Group("/api")
	if cfg.RedisEnabled() {
		api.Use(middleware.RateLimit(app.RedisClient, cfg.RateLimitMax, cfg.RateLimitWindow))
	}
	api.GET("/rooms/:code", roomHandler.GetRoomByCode)
	api.GET("/stats", roomHandler.GetStats)

	router.GET("/ws", socketHandler.HandleConnection)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	app.HttpServer = &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	log.Info("Application assembled")
	return app, nil
}

// Start launches the hub loop, the worker and the HTTP server.
func (a *App) Start() {
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	if a.Worker != nil {
		go a.Worker.Start()
		a.registerPeriodicTasks()
	}

	go func() {
		a.Log.Infof("Dev Planner server listening on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()
}

func (a *App) registerPeriodicTasks() {
	a.scheduler = asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{})

	if a.Config.RoomIdleTTL > 0 {
		entryID, err := a.scheduler.Register("@every 5m", tasks.NewRoomSweepTask(), asynq.Queue("default"))
		if err != nil {
			a.Log.Errorf("Could not register room sweep task: %v", err)
		} else {
			a.Log.Infof("Room sweep registered (idle TTL %s, EntryID: %s)", a.Config.RoomIdleTTL, entryID)
		}
	}
	if a.Config.DBEnabled() {
		entryID, err := a.scheduler.Register("@every 24h", tasks.NewJournalPruneTask(), asynq.Queue("low"))
		if err != nil {
			a.Log.Errorf("Could not register journal prune task: %v", err)
		} else {
			a.Log.Infof("Journal prune registered (retention %s, EntryID: %s)", a.Config.JournalRetention, entryID)
		}
	}

	go func() {
		if err := a.scheduler.Run(); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			a.Log.Errorf("Asynq scheduler stopped with error: %v", err)
		}
	}()
}

// Shutdown stops the components in reverse dependency order.
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}
	if a.Worker != nil {
		a.Worker.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	}

	a.Hub.Stop()

	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete")
}

// LoggerMiddleware logs each HTTP request with logrus.
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			entry.Error(errorMessage)
		} else if statusCode >= 500 {
			entry.Error("Server error")
		} else if statusCode >= 400 {
			entry.Warn("Client error")
		} else {
			entry.Info("Request handled")
		}
	}
}

func corsMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice_survey_backend/internal/config"
	"voice_survey_backend/internal/controller"
	"voice_survey_backend/internal/repository"
	"voice_survey_backend/internal/service"
	"voice_survey_backend/pkg/database"
	"voice_survey_backend/pkg/logger"
	"voice_survey_backend/pkg/monitoring"
	"voice_survey_backend/pkg/security"
	"voice_survey_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	survey  *repository.SurveyRepository
	contact *repository.ContactRepository
	attempt *repository.CallAttemptRepository
}

type services struct {
	gateway *service.TwilioGateway
	oracle  *service.ClarifyService
	hub     *service.EventHub
	runner  *service.CallRunner
	sink    *service.ResultSink
	dialer  *service.DialerService
}

type controllers struct {
	health  *controller.HealthController
	webhook *controller.WebhookController
	dialer  *controller.DialerController
	attempt *controller.CallAttemptController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig fans a reloaded config out to every registered callback. The
// config watcher calls this on file change.
func (a *App) ApplyConfig(cfg *config.Config) {
	for _, callback := range a.configCallbacks {
		callback(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		survey:  repository.NewSurveyRepository(db),
		contact: repository.NewContactRepository(db),
		attempt: repository.NewCallAttemptRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.gateway = service.NewTwilioGateway(cfg.Telephony)
	s.oracle = service.NewClarifyService(cfg.AI)

	s.hub = service.NewEventHub(rdb)
	go s.hub.Run()

	s.runner = service.NewCallRunner(s.gateway, s.oracle, s.hub)

	s.sink = service.NewResultSink(repos.attempt, s.hub)
	s.sink.Run()

	s.dialer = service.NewDialerService(cfg.Dialer, repos.survey, repos.contact, s.runner, s.sink, rdb)
	go s.dialer.Run()

	return s
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB) *controllers {
	return &controllers{
		health:  controller.NewHealthController(db),
		webhook: controller.NewWebhookController(s.gateway),
		dialer:  controller.NewDialerController(s.dialer, repos.survey, repos.contact),
		attempt: controller.NewCallAttemptController(repos.attempt),
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

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	migrate := cfg.Server.Mode != "release" || cfg.ForceMigrate
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	if cfg.MigrateOnly {
		return app
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, repos, db)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("voice-survey-dialer", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, services)

	app.RegisterConfigCallback(func(c *config.Config) {
		services.dialer.UpdateConfig(c.Dialer)
	})

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

	// Drain order matters: stop dispatching and wait for in-flight calls,
	// flush their results, then close the event stream.
	if a.services != nil {
		a.services.dialer.Stop()
		a.services.sink.Stop()
		a.services.hub.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

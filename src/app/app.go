package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethaccount/gasless/src/handler"
	"github.com/ethaccount/gasless/src/repository"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/rs/zerolog"
	postgresDriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const executionCachePrefix = "executions"

type Application struct {
	*Services

	config    AppConfig
	database  *gorm.DB
	redis     *redis.Client
	execCache *repository.ExecutionCacheRepository
}

func NewApplication(ctx context.Context, config AppConfig) (*Application, error) {
	logger := zerolog.Ctx(ctx).With().Str("function", "NewApplication").Logger()

	// Connect to Redis
	redisOpts, err := redis.ParseURL(*config.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connection to redis failed: %w", err)
	}
	logger.Info().Msg("Redis connection established")

	// Connect to database
	database, err := gorm.Open(postgresDriver.Open(*config.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connection to database failed: %w", err)
	}
	db, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connection to database failed: %w", err)
	}
	logger.Info().Msg("Database connection established")

	version, err := MigrationUp(*config.DSN, *config.MigrationPath)
	if err != nil {
		return nil, err
	}
	logger.Info().Uint("schema_version", version).Msg("Migrations applied")

	execCache := repository.NewExecutionCacheRepository(rdb, executionCachePrefix)
	services, err := NewServices(ctx, config, execCache, repository.NewExecutionRepository(database))
	if err != nil {
		return nil, err
	}

	return &Application{
		Services:  services,
		config:    config,
		database:  database,
		redis:     rdb,
		execCache: execCache,
	}, nil
}

func (app *Application) Shutdown(ctx context.Context) {
	logger := zerolog.Ctx(ctx).With().Str("function", "Shutdown").Logger()

	if app.Services != nil {
		app.Services.Close(ctx)
		logger.Info().Msg("Wallet disconnected and RPC clients closed")
	}

	// Close database connection
	if app.database != nil {
		db, err := app.database.DB()
		if err != nil {
			logger.Error().Err(err).Msg("Failed to get underlying database connection")
		} else {
			if err := db.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close database connection")
			} else {
				logger.Info().Msg("Database connection closed")
			}
		}
	}

	// Close Redis connection
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close redis connection")
		} else {
			logger.Info().Msg("Redis connection closed")
		}
	}
}

func (app *Application) RunHTTPServer(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := zerolog.Ctx(ctx).With().Str("function", "RunHTTPServer").Logger()

	// Set to release mode to disable Gin logger
	gin.SetMode(gin.ReleaseMode)

	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())

	app.registerRoutes(ctx, ginRouter)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", *app.config.Port),
		Handler:           ginRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Msgf("HTTP server is on http://localhost:%s/health", *app.config.Port)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			logger.Panic().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("Gracefully shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shutdown HTTP server gracefully")
	} else {
		logger.Info().Msg("HTTP server shutdown complete")
	}
}

func (app *Application) registerRoutes(ctx context.Context, router *gin.Engine) {
	config := cors.DefaultConfig()
	config.AllowOrigins = *app.config.AllowOrigins
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-API-Secret"}
	config.AllowCredentials = true

	router.Use(cors.New(config))

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	handler.RegisterRoutes(ctx, router, handler.Services{
		Connection:   app.Connection,
		Registry:     app.Registry,
		Accounts:     app.Accounts,
		Orchestrator: app.Orchestrator,
		Estimator:    app.Estimator,
		Swaps:        app.Swaps,
		CacheStats:   app.execCache,
	}, handler.RouteConfig{
		APISecret: *app.config.APISecret,
		RateLimit: *app.config.RateLimitRPS,
		RateBurst: *app.config.RateLimitBurst,
	})
}

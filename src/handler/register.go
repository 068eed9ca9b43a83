package handler

import (
	"context"
	"reflect"

	"github.com/ethaccount/gasless/src/service"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/shopspring/decimal"
)

// Services are the components served over HTTP. CacheStats may be nil.
type Services struct {
	Connection   *service.ConnectionService
	Registry     *service.NetworkRegistry
	Accounts     *service.SmartAccountManager
	Orchestrator *service.TransactionOrchestrator
	Estimator    *service.GasEstimator
	Swaps        *service.SwapQuoteClient
	CacheStats   CacheStatsReader
}

type RouteConfig struct {
	// APISecret protects the API group when set
	APISecret string
	// RateLimit is the per client request rate; zero disables limiting
	RateLimit float64
	RateBurst int
}

func RegisterRoutes(ctx context.Context, router *gin.Engine, services Services, cfg RouteConfig) {

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if value, ok := field.Interface().(decimal.Decimal); ok {
				return value.String()
			}
			return nil
		}, decimal.Decimal{})
	}

	SetMiddlewares(ctx, router)

	router.GET("/health", handleHealthCheck(services.CacheStats))

	connectionHandler := NewConnectionHandler(services.Connection, services.Registry)
	sessionHandler := NewSessionHandler(services.Accounts)
	transactionHandler := NewTransactionHandler(services.Connection, services.Orchestrator, services.Estimator)

	v1 := router.Group("/api/v1")
	if cfg.RateLimit > 0 {
		v1.Use(NewRateLimiter(ctx, cfg.RateLimit, cfg.RateBurst).Middleware())
	}
	if cfg.APISecret != "" {
		v1.Use(SharedSecretMiddleware(cfg.APISecret))
	}
	{
		v1.GET("/networks", connectionHandler.ListNetworks)

		v1.GET("/connection", connectionHandler.GetConnection)
		v1.POST("/connection", connectionHandler.Connect)
		v1.DELETE("/connection", connectionHandler.Disconnect)
		v1.POST("/connection/network", connectionHandler.SwitchNetwork)

		v1.GET("/session", sessionHandler.GetSession)
		v1.POST("/session", sessionHandler.InitSession)
		v1.PUT("/session/gasless", sessionHandler.SetGasless)
		v1.GET("/session/sponsorship", sessionHandler.GetSponsorship)

		v1.POST("/transactions", transactionHandler.Execute)
		v1.GET("/transactions", transactionHandler.ListHistory)
		v1.POST("/transactions/estimate", transactionHandler.Estimate)
		v1.GET("/transactions/:actionId", transactionHandler.GetStatus)

		if services.Swaps != nil {
			swapHandler := NewSwapHandler(services.Connection, services.Swaps, services.Orchestrator)
			v1.POST("/swaps/quote", swapHandler.Quote)
			v1.POST("/swaps/execute", swapHandler.Execute)
		}
	}

}

package handler

import (
	"context"
	"net/http"

	"github.com/ethaccount/gasless/src/repository"
	"github.com/gin-gonic/gin"
)

// CacheStatsReader reports the execution status cache counters
type CacheStatsReader interface {
	Statistics(ctx context.Context) (*repository.CacheStatistics, error)
}

type healthResponse struct {
	Message    string                      `json:"message"`
	Executions *repository.CacheStatistics `json:"executions,omitempty"`
}

// HealthCheck godoc
// @Summary Health check endpoint
// @Description Check if the service is running
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} healthResponse
// @Router /health [get]
func handleHealthCheck(stats CacheStatsReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := healthResponse{Message: "ok"}
		if stats != nil {
			s, err := stats.Statistics(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"message": "cache unavailable"})
				return
			}
			resp.Executions = s
		}
		c.JSON(http.StatusOK, resp)
	}
}

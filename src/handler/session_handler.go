package handler

import (
	"context"

	"github.com/ethaccount/gasless/src/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type SessionHandler struct {
	accounts *service.SmartAccountManager
}

func NewSessionHandler(accounts *service.SmartAccountManager) *SessionHandler {
	return &SessionHandler{accounts: accounts}
}

func (h *SessionHandler) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("handler", "session").Logger()
	return &l
}

type SetGaslessRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// GetSession godoc
// @Summary Smart account session of the connected identity
// @Tags session
// @Produce json
// @Success 200 {object} StandardResponse{data=domain.SessionSnapshot}
// @Router /api/v1/session [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	respondWithSuccess(c, h.accounts.Snapshot())
}

// InitSession godoc
// @Summary Initialize the smart account session
// @Description Returns the ready session, initializing it when needed
// @Tags session
// @Produce json
// @Success 200 {object} StandardResponse{data=domain.SessionSnapshot}
// @Failure 409 {object} StandardResponse
// @Failure 502 {object} StandardResponse
// @Router /api/v1/session [post]
func (h *SessionHandler) InitSession(c *gin.Context) {
	logger := h.logger(c.Request.Context()).With().Str("func", "InitSession").Logger()

	if _, err := h.accounts.EnsureSession(c.Request.Context()); err != nil {
		logger.Error().Err(err).Msg("failed to initialize session")
		respondWithError(c, toDomainError(err))
		return
	}
	respondWithSuccess(c, h.accounts.Snapshot())
}

// SetGasless godoc
// @Summary Enable or disable gasless execution
// @Tags session
// @Accept json
// @Produce json
// @Param request body SetGaslessRequest true "gasless preference"
// @Success 200 {object} StandardResponse{data=domain.SessionSnapshot}
// @Router /api/v1/session/gasless [put]
func (h *SessionHandler) SetGasless(c *gin.Context) {
	var req SetGaslessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger(c.Request.Context()).Error().Err(err).Msg("invalid request payload")
		respondWithBindingError(c, err)
		return
	}
	h.accounts.SetGaslessEnabled(*req.Enabled)
	respondWithSuccess(c, h.accounts.Snapshot())
}

// GetSponsorship godoc
// @Summary Remaining paymaster sponsorship budget
// @Tags session
// @Produce json
// @Success 200 {object} StandardResponse{data=domain.SponsorshipBalance}
// @Router /api/v1/session/sponsorship [get]
func (h *SessionHandler) GetSponsorship(c *gin.Context) {
	respondWithSuccess(c, h.accounts.GetSponsorshipBalance(c.Request.Context()))
}

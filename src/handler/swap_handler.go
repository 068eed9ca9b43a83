package handler

import (
	"context"

	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethaccount/gasless/src/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type SwapHandler struct {
	connection   *service.ConnectionService
	swaps        *service.SwapQuoteClient
	orchestrator *service.TransactionOrchestrator
}

func NewSwapHandler(connection *service.ConnectionService, swaps *service.SwapQuoteClient, orchestrator *service.TransactionOrchestrator) *SwapHandler {
	return &SwapHandler{
		connection:   connection,
		swaps:        swaps,
		orchestrator: orchestrator,
	}
}

func (h *SwapHandler) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("handler", "swap").Logger()
	return &l
}

// SwapRequest asks for a route. ChainID defaults to the connected chain.
type SwapRequest struct {
	ChainID     int64           `json:"chainId"`
	FromToken   common.Address  `json:"fromToken" binding:"required"`
	ToToken     common.Address  `json:"toToken" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Slippage    decimal.Decimal `json:"slippage"`
	ForceDirect bool            `json:"forceDirect"`
	ActionID    string          `json:"actionId" binding:"omitempty,max=64"`
}

type SwapExecution struct {
	Quote  *domain.SwapQuote         `json:"quote"`
	Result *domain.TransactionResult `json:"result"`
}

func (h *SwapHandler) quoteRequest(req SwapRequest) domain.SwapQuoteRequest {
	state := h.connection.State()
	quoteReq := domain.SwapQuoteRequest{
		ChainID:   req.ChainID,
		FromToken: req.FromToken,
		ToToken:   req.ToToken,
		Amount:    req.Amount,
		Slippage:  req.Slippage,
	}
	if state.IsConnected() {
		quoteReq.From = *state.Address
		if quoteReq.ChainID == 0 {
			quoteReq.ChainID = *state.ChainID
		}
	}
	return quoteReq
}

// Quote godoc
// @Summary Quote a token swap
// @Tags swaps
// @Accept json
// @Produce json
// @Param request body SwapRequest true "swap parameters"
// @Success 200 {object} StandardResponse{data=domain.SwapQuote}
// @Failure 400 {object} StandardResponse
// @Failure 502 {object} StandardResponse
// @Router /api/v1/swaps/quote [post]
func (h *SwapHandler) Quote(c *gin.Context) {
	logger := h.logger(c.Request.Context()).With().Str("func", "Quote").Logger()

	var req SwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error().Err(err).Msg("invalid request payload")
		respondWithBindingError(c, err)
		return
	}

	quote, err := h.swaps.Quote(c.Request.Context(), h.quoteRequest(req))
	if err != nil {
		logger.Error().Err(err).Msg("failed to quote swap")
		respondWithError(c, toDomainError(err))
		return
	}
	respondWithSuccess(c, quote)
}

// Execute godoc
// @Summary Build and execute a token swap
// @Description The swap transaction runs through the same sponsored or direct paths as any other call
// @Tags swaps
// @Accept json
// @Produce json
// @Param request body SwapRequest true "swap parameters"
// @Success 200 {object} StandardResponse{data=SwapExecution}
// @Failure 400 {object} StandardResponse
// @Failure 409 {object} StandardResponse
// @Failure 502 {object} StandardResponse
// @Router /api/v1/swaps/execute [post]
func (h *SwapHandler) Execute(c *gin.Context) {
	logger := h.logger(c.Request.Context()).With().Str("func", "Execute").Logger()

	var req SwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error().Err(err).Msg("invalid request payload")
		respondWithBindingError(c, err)
		return
	}

	if !h.connection.State().IsConnected() {
		respondWithError(c, toDomainError(domain.ExecutionErrorf(domain.ExecutionNotConnected, "wallet is not connected")))
		return
	}

	quote, err := h.swaps.BuildSwap(c.Request.Context(), h.quoteRequest(req))
	if err != nil {
		logger.Error().Err(err).Msg("failed to build swap")
		respondWithError(c, toDomainError(err))
		return
	}

	result, err := h.orchestrator.Execute(c.Request.Context(), []domain.CallRequest{quote.Transaction}, domain.ExecuteOptions{
		ForceDirect: req.ForceDirect,
		ActionID:    req.ActionID,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to execute swap")
		respondWithError(c, toDomainError(err))
		return
	}

	logger.Info().
		Str("action_id", result.ActionID).
		Str("to_amount", quote.ToAmount.String()).
		Msg("swap executed")
	respondWithSuccess(c, SwapExecution{Quote: quote, Result: result})
}

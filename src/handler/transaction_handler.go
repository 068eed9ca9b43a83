package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethaccount/gasless/src/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxHistoryLimit = 200

type TransactionHandler struct {
	connection   *service.ConnectionService
	orchestrator *service.TransactionOrchestrator
	estimator    *service.GasEstimator
}

func NewTransactionHandler(connection *service.ConnectionService, orchestrator *service.TransactionOrchestrator, estimator *service.GasEstimator) *TransactionHandler {
	return &TransactionHandler{
		connection:   connection,
		orchestrator: orchestrator,
		estimator:    estimator,
	}
}

func (h *TransactionHandler) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("handler", "transaction").Logger()
	return &l
}

// ExecuteRequest represents the request payload for executing a batch of calls
type ExecuteRequest struct {
	Calls       []domain.CallRequest `json:"calls" binding:"required,min=1,dive"`
	ForceDirect bool                 `json:"forceDirect"`
	ActionID    string               `json:"actionId" binding:"omitempty,max=64"`
}

// Execute godoc
// @Summary Execute a batch of calls
// @Description Sends the batch as one sponsored user operation when possible and falls back to a wallet transaction
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body ExecuteRequest true "calls to execute"
// @Success 201 {object} StandardResponse{data=domain.TransactionResult}
// @Failure 400 {object} StandardResponse
// @Failure 409 {object} StandardResponse
// @Failure 502 {object} StandardResponse
// @Router /api/v1/transactions [post]
func (h *TransactionHandler) Execute(c *gin.Context) {
	logger := h.logger(c.Request.Context()).With().Str("func", "Execute").Logger()

	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error().Err(err).Msg("invalid request payload")
		respondWithBindingError(c, err)
		return
	}

	result, err := h.orchestrator.Execute(c.Request.Context(), req.Calls, domain.ExecuteOptions{
		ForceDirect: req.ForceDirect,
		ActionID:    req.ActionID,
	})
	if err != nil {
		logger.Error().Err(err).Int("calls", len(req.Calls)).Msg("failed to execute calls")
		respondWithError(c, toDomainError(err))
		return
	}

	logger.Info().
		Str("action_id", result.ActionID).
		Str("path", string(result.Path)).
		Str("tx_hash", result.TransactionHash.Hex()).
		Msg("calls executed")

	respondWithSuccessAndStatus(c, http.StatusCreated, result, "Transaction confirmed")
}

// Estimate godoc
// @Summary Estimate the fee of a single call
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body domain.CallRequest true "call to estimate"
// @Success 200 {object} StandardResponse{data=domain.GasEstimate}
// @Router /api/v1/transactions/estimate [post]
func (h *TransactionHandler) Estimate(c *gin.Context) {
	var call domain.CallRequest
	if err := c.ShouldBindJSON(&call); err != nil {
		h.logger(c.Request.Context()).Error().Err(err).Msg("invalid request payload")
		respondWithBindingError(c, err)
		return
	}
	respondWithSuccess(c, h.estimator.Estimate(c.Request.Context(), call))
}

// GetStatus godoc
// @Summary Status of an action
// @Tags transactions
// @Produce json
// @Param actionId path string true "action id"
// @Success 200 {object} StandardResponse{data=domain.ExecutionCache}
// @Failure 404 {object} StandardResponse
// @Router /api/v1/transactions/{actionId} [get]
func (h *TransactionHandler) GetStatus(c *gin.Context) {
	actionID := c.Param("actionId")
	status, err := h.orchestrator.Status(c.Request.Context(), actionID)
	if err != nil {
		h.logger(c.Request.Context()).Debug().Err(err).Str("action_id", actionID).Msg("status lookup failed")
		respondWithError(c, toDomainError(err))
		return
	}
	respondWithSuccess(c, status)
}

// ListHistory godoc
// @Summary Recent executions of an owner
// @Description owner defaults to the connected address
// @Tags transactions
// @Produce json
// @Param owner query string false "owner address"
// @Param limit query int false "maximum number of entries"
// @Success 200 {object} StandardResponse{data=[]domain.ExecutionRecord}
// @Failure 400 {object} StandardResponse
// @Router /api/v1/transactions [get]
func (h *TransactionHandler) ListHistory(c *gin.Context) {
	owner, err := h.historyOwner(c.Query("owner"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 || limit > maxHistoryLimit {
			respondWithError(c, domain.NewError(domain.ErrorCodeParameterInvalid, errors.New("invalid limit"),
				domain.WithMsg("limit must be between 0 and "+strconv.Itoa(maxHistoryLimit))))
			return
		}
	}

	records, err := h.orchestrator.History(c.Request.Context(), owner, limit)
	if err != nil {
		h.logger(c.Request.Context()).Error().Err(err).Str("owner", owner.Hex()).Msg("failed to list executions")
		respondWithError(c, toDomainError(err))
		return
	}
	if records == nil {
		records = []*domain.ExecutionRecord{}
	}
	respondWithSuccess(c, records)
}

func (h *TransactionHandler) historyOwner(raw string) (common.Address, error) {
	if raw != "" {
		if !common.IsHexAddress(raw) {
			return common.Address{}, domain.NewError(domain.ErrorCodeParameterInvalid, errors.New("invalid owner address"),
				domain.WithMsg("owner must be a hex address"))
		}
		return common.HexToAddress(raw), nil
	}

	state := h.connection.State()
	if !state.IsConnected() {
		return common.Address{}, domain.NewError(domain.ErrorCodeParameterInvalid, errors.New("owner is required"),
			domain.WithMsg("owner is required when no wallet is connected"))
	}
	return *state.Address, nil
}

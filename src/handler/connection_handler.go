package handler

import (
	"context"

	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethaccount/gasless/src/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type ConnectionHandler struct {
	connection *service.ConnectionService
	registry   *service.NetworkRegistry
}

func NewConnectionHandler(connection *service.ConnectionService, registry *service.NetworkRegistry) *ConnectionHandler {
	return &ConnectionHandler{
		connection: connection,
		registry:   registry,
	}
}

func (h *ConnectionHandler) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("handler", "connection").Logger()
	return &l
}

type ConnectRequest struct {
	WalletKind domain.WalletKind `json:"walletKind" binding:"required"`
}

type SwitchNetworkRequest struct {
	ChainID int64 `json:"chainId" binding:"required,gt=0"`
}

// GetConnection godoc
// @Summary Current wallet connection
// @Tags connection
// @Produce json
// @Success 200 {object} StandardResponse{data=domain.ConnectionState}
// @Router /api/v1/connection [get]
func (h *ConnectionHandler) GetConnection(c *gin.Context) {
	respondWithSuccess(c, h.connection.State())
}

// Connect godoc
// @Summary Connect a registered wallet
// @Tags connection
// @Accept json
// @Produce json
// @Param request body ConnectRequest true "wallet to connect"
// @Success 200 {object} StandardResponse{data=domain.ConnectionState}
// @Failure 400 {object} StandardResponse
// @Failure 502 {object} StandardResponse
// @Router /api/v1/connection [post]
func (h *ConnectionHandler) Connect(c *gin.Context) {
	logger := h.logger(c.Request.Context()).With().Str("func", "Connect").Logger()

	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error().Err(err).Msg("invalid request payload")
		respondWithBindingError(c, err)
		return
	}

	state, err := h.connection.Connect(c.Request.Context(), req.WalletKind)
	if err != nil {
		logger.Error().Err(err).Str("wallet_kind", string(req.WalletKind)).Msg("failed to connect wallet")
		respondWithError(c, toDomainError(err))
		return
	}
	respondWithSuccess(c, state)
}

// Disconnect godoc
// @Summary Disconnect the wallet
// @Tags connection
// @Produce json
// @Success 200 {object} StandardResponse{data=domain.ConnectionState}
// @Router /api/v1/connection [delete]
func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	respondWithSuccess(c, h.connection.Disconnect(c.Request.Context()))
}

// SwitchNetwork godoc
// @Summary Switch the wallet to another supported chain
// @Tags connection
// @Accept json
// @Produce json
// @Param request body SwitchNetworkRequest true "target chain"
// @Success 200 {object} StandardResponse{data=domain.ConnectionState}
// @Failure 400 {object} StandardResponse
// @Failure 409 {object} StandardResponse
// @Router /api/v1/connection/network [post]
func (h *ConnectionHandler) SwitchNetwork(c *gin.Context) {
	logger := h.logger(c.Request.Context()).With().Str("func", "SwitchNetwork").Logger()

	var req SwitchNetworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error().Err(err).Msg("invalid request payload")
		respondWithBindingError(c, err)
		return
	}

	state, err := h.connection.SwitchNetwork(c.Request.Context(), req.ChainID)
	if err != nil {
		logger.Error().Err(err).Int64("chain_id", req.ChainID).Msg("failed to switch network")
		respondWithError(c, toDomainError(err))
		return
	}
	respondWithSuccess(c, state)
}

// ListNetworks godoc
// @Summary Supported networks
// @Tags connection
// @Produce json
// @Success 200 {object} StandardResponse{data=[]networkResponse}
// @Router /api/v1/networks [get]
func (h *ConnectionHandler) ListNetworks(c *gin.Context) {
	networks := h.registry.Networks()
	resp := make([]networkResponse, 0, len(networks))
	for _, n := range networks {
		resp = append(resp, networkResponse{NetworkDescriptor: n, SupportsGasless: n.SupportsGasless()})
	}
	respondWithSuccess(c, resp)
}

type networkResponse struct {
	domain.NetworkDescriptor
	SupportsGasless bool `json:"supportsGasless"`
}

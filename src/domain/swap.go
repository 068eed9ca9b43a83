package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// SwapQuoteRequest asks the aggregator for a swap route
type SwapQuoteRequest struct {
	ChainID   int64           `json:"chainId"`
	FromToken common.Address  `json:"fromToken"`
	ToToken   common.Address  `json:"toToken"`
	Amount    decimal.Decimal `json:"amount"`
	From      common.Address  `json:"from"`
	Slippage  decimal.Decimal `json:"slippage"`
}

// SwapQuote is an executable route. Transaction is ready to pass to Execute as a single call.
type SwapQuote struct {
	FromToken    common.Address  `json:"fromToken"`
	ToToken      common.Address  `json:"toToken"`
	FromAmount   decimal.Decimal `json:"fromAmount"`
	ToAmount     decimal.Decimal `json:"toAmount"`
	PriceImpact  decimal.Decimal `json:"priceImpact"`
	EstimatedGas uint64          `json:"estimatedGas"`
	Transaction  CallRequest     `json:"transaction"`
}

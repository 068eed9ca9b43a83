package service

import (
	"context"
	"math/big"
	"time"

	"github.com/rs/zerolog"
)

// GasPricePoller refreshes the displayed gas price on a fixed interval
type GasPricePoller struct {
	interval time.Duration
	fetch    func(ctx context.Context) (*big.Int, error)
	apply    func(ctx context.Context, price *big.Int)
}

func NewGasPricePoller(interval time.Duration, fetch func(ctx context.Context) (*big.Int, error), apply func(ctx context.Context, price *big.Int)) *GasPricePoller {
	return &GasPricePoller{
		interval: interval,
		fetch:    fetch,
		apply:    apply,
	}
}

// logger wraps the execution context with component info
func (p *GasPricePoller) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("component", "gas-price-poller").Logger()
	return &l
}

// Start polls once immediately and then on every tick until ctx is done
func (p *GasPricePoller) Start(ctx context.Context) error {
	p.logger(ctx).Debug().
		Dur("polling_interval", p.interval).
		Msg("starting gas price poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger(ctx).Debug().Msg("gas price poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *GasPricePoller) poll(ctx context.Context) {
	price, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger(ctx).Warn().Err(err).Msg("failed to fetch gas price")
		}
		return
	}
	p.apply(ctx, price)
}

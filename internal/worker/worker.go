package worker

import (
	"context"
	"time"

	"github.com/rookgm/chatpesa/internal/logger"
	"go.uber.org/zap"
)

type OrderService interface {
	ExpireStaleOrders(ctx context.Context) (int, error)
}

// OrderSweeper is worker fails orders left awaiting payment past deadline
type OrderSweeper struct {
	svc      OrderService
	interval time.Duration
}

// NewOrderSweeper create new order sweeper
func NewOrderSweeper(svc OrderService, interval time.Duration) *OrderSweeper {
	return &OrderSweeper{svc: svc, interval: interval}
}

// SweepOrders expires stale orders every interval until ctx is done
func (os *OrderSweeper) SweepOrders(ctx context.Context) {
	ticker := time.NewTicker(os.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Debug("order sweeper is done")
			return
		case <-ticker.C:
			n, err := os.svc.ExpireStaleOrders(ctx)
			if err != nil {
				logger.Log.Error("expire stale orders", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Log.Info("stale orders expired", zap.Int("count", n))
			}
		}
	}
}

package service

//go:generate mockgen -destination=mocks/mocks.go -package=mocks . MessageRepository,MessageSender,Notifier,OrderRepository,PaymentInitiator,PaymentProvider,SessionCompleter

import (
	"context"
	"errors"
	"time"

	"github.com/rookgm/chatpesa/internal/logger"
	"github.com/rookgm/chatpesa/internal/models"
	"go.uber.org/zap"
)

// failure reasons written by the service itself
const (
	ReasonCancelled = "cancelled"
	ReasonExpired   = "expired"
)

// OrderRepository is interface for interacting with order-related data
type OrderRepository interface {
	// CreateOrder inserts new order awaiting payment
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	// GetOrderByID returns order by id
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	// GetOrderByCheckoutID returns order by provider checkout request id
	GetOrderByCheckoutID(ctx context.Context, checkoutID string) (*models.Order, error)
	// GetPendingByPhone returns newest order awaiting payment
	GetPendingByPhone(ctx context.Context, phone string) (*models.Order, error)
	// ListPendingByPhone returns all orders awaiting payment, newest first
	ListPendingByPhone(ctx context.Context, phone string) ([]models.Order, error)
	// AttachCheckoutID stores provider checkout request id
	AttachCheckoutID(ctx context.Context, id, checkoutID string) error
	// MarkPaid moves order awaiting payment to PAID
	MarkPaid(ctx context.Context, id, receipt, payerName string) (*models.Order, error)
	// MarkFailed moves order awaiting payment to FAILED
	MarkFailed(ctx context.Context, id, reason string) (*models.Order, error)
	// ListOrders returns all orders, newest first
	ListOrders(ctx context.Context) ([]models.Order, error)
	// ListStalePending returns orders awaiting payment created before olderThan
	ListStalePending(ctx context.Context, olderThan time.Time) ([]models.Order, error)
}

// Notifier sends message to customer without waiting for delivery
type Notifier interface {
	Notify(phone, message string)
}

// SessionCompleter finishes conversation waiting for order
type SessionCompleter interface {
	Complete(phone, orderID string)
}

// OrderService implements order use cases outside of the chat
type OrderService struct {
	repo     OrderRepository
	notifier Notifier
	sessions SessionCompleter
	deadline time.Duration
	now      func() time.Time
}

// NewOrderService creates new OrderService instance.
// Orders awaiting payment longer than deadline are expired by ExpireStaleOrders.
func NewOrderService(repo OrderRepository, notifier Notifier, sessions SessionCompleter, deadline time.Duration) *OrderService {
	return &OrderService{
		repo:     repo,
		notifier: notifier,
		sessions: sessions,
		deadline: deadline,
		now:      time.Now,
	}
}

// CreateOrder creates order awaiting payment for canonical phone
func (os *OrderService) CreateOrder(ctx context.Context, phone, customerName string, amount int64) (*models.Order, error) {
	return os.repo.CreateOrder(ctx, &models.Order{
		Phone:        phone,
		CustomerName: customerName,
		Amount:       amount,
	})
}

// ListOrders returns all orders for dashboard
func (os *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	return os.repo.ListOrders(ctx)
}

// ExpireStaleOrders fails orders nobody paid for in time and returns how many were expired
func (os *OrderService) ExpireStaleOrders(ctx context.Context) (int, error) {
	orders, err := os.repo.ListStalePending(ctx, os.now().Add(-os.deadline))
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, order := range orders {
		updated, err := os.repo.MarkFailed(ctx, order.ID, ReasonExpired)
		if err != nil {
			if errors.Is(err, models.ErrAlreadyTerminal) {
				// settled between listing and update
				logger.Log.Debug("order settled before expiry", zap.String("order", order.ID))
				continue
			}
			logger.Log.Error("expire order", zap.String("order", order.ID), zap.Error(err))
			continue
		}

		expired++
		logger.Log.Info("order expired", zap.String("order", updated.ID))
		os.notifier.Notify(updated.Phone, orderExpiredMessage(updated))
		os.sessions.Complete(updated.Phone, updated.ID)
	}

	return expired, nil
}

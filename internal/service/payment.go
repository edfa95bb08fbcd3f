package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rookgm/chatpesa/internal/logger"
	"github.com/rookgm/chatpesa/internal/models"
	"github.com/rookgm/chatpesa/internal/mpesa"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// PaymentProvider requests push payment from the customer
type PaymentProvider interface {
	STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
}

// PaymentInitiator starts payment for order without waiting for the provider
type PaymentInitiator interface {
	Initiate(order models.Order)
}

// InitiatorConfig is payment worker pool settings
type InitiatorConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds single provider call
	Timeout time.Duration
	// RateLimit is provider requests per second, zero means unlimited
	RateLimit   float64
	Description string
}

func (c *InitiatorConfig) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Description == "" {
		c.Description = "ChatPesa order"
	}
}

// Initiator sends payment requests to the provider on a fixed pool of workers
type Initiator struct {
	cfg      InitiatorConfig
	repo     OrderRepository
	provider PaymentProvider
	notifier Notifier
	sessions SessionCompleter
	limiter  *rate.Limiter
	queue    chan models.Order
	// rejected holds orders that did not fit into queue, they are failed by a single worker
	rejected chan models.Order
}

// NewInitiator creates new Initiator instance, workers are started by Run
func NewInitiator(cfg InitiatorConfig, repo OrderRepository, provider PaymentProvider,
	notifier Notifier, sessions SessionCompleter) *Initiator {
	cfg.setDefaults()

	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = max(1, int(cfg.RateLimit))
	}

	return &Initiator{
		cfg:      cfg,
		repo:     repo,
		provider: provider,
		notifier: notifier,
		sessions: sessions,
		limiter:  rate.NewLimiter(limit, burst),
		queue:    make(chan models.Order, cfg.QueueSize),
		rejected: make(chan models.Order, cfg.QueueSize),
	}
}

// Initiate enqueues order for payment, it never blocks.
// Order is failed when the queue is full.
func (i *Initiator) Initiate(order models.Order) {
	select {
	case i.queue <- order:
		logger.Log.Debug("payment enqueued", zap.String("order", order.ID))
		return
	default:
	}

	// caller may hold the customer session, fail asynchronously
	select {
	case i.rejected <- order:
	default:
		// order stays pending until stale orders are expired
		logger.Log.Error("payment dropped, failure backlog is full", zap.String("order", order.ID))
	}
}

// Run starts workers and blocks until ctx is done
func (i *Initiator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for n := 0; n < i.cfg.Workers; n++ {
		g.Go(func() error {
			i.work(ctx)
			return nil
		})
	}
	g.Go(func() error {
		i.failRejected(ctx)
		return nil
	})
	return g.Wait()
}

// failRejected fails orders that did not fit into the queue, backlog is drained on shutdown
func (i *Initiator) failRejected(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case order := <-i.rejected:
					i.fail(ctx, order, models.ErrQueueFull)
				default:
					return
				}
			}
		case order := <-i.rejected:
			i.fail(ctx, order, models.ErrQueueFull)
		}
	}
}

func (i *Initiator) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Log.Debug("payment worker is done")
			return
		case order := <-i.queue:
			i.process(ctx, order)
		}
	}
}

func (i *Initiator) process(ctx context.Context, order models.Order) {
	if err := i.limiter.Wait(ctx); err != nil {
		// shutting down, order stays pending until it expires
		logger.Log.Warn("payment not sent", zap.String("order", order.ID), zap.Error(err))
		return
	}

	// provider call is not cancelled on shutdown
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.cfg.Timeout)
	defer cancel()

	resp, err := i.provider.STKPush(callCtx, mpesa.STKPushRequest{
		Phone:            order.Phone,
		Amount:           order.Amount,
		AccountReference: order.ID,
		Description:      i.cfg.Description,
	})
	if err != nil {
		i.fail(callCtx, order, err)
		return
	}

	logger.Log.Info("payment prompt sent",
		zap.String("order", order.ID),
		zap.String("checkout_request_id", resp.CheckoutRequestID))

	if resp.CheckoutRequestID == "" {
		return
	}
	if err := i.repo.AttachCheckoutID(callCtx, order.ID, resp.CheckoutRequestID); err != nil {
		logger.Log.Error("attach checkout id", zap.String("order", order.ID), zap.Error(err))
	}
}

// fail records initiation failure, customer is notified only by the call that moved the order
func (i *Initiator) fail(ctx context.Context, order models.Order, cause error) {
	logger.Log.Warn("payment initiation failed", zap.String("order", order.ID), zap.Error(cause))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.cfg.Timeout)
	defer cancel()

	updated, err := i.repo.MarkFailed(ctx, order.ID, initiationFailureReason(cause))
	if err != nil {
		if errors.Is(err, models.ErrAlreadyTerminal) {
			logger.Log.Debug("order already settled", zap.String("order", order.ID))
			return
		}
		logger.Log.Error("mark order failed", zap.String("order", order.ID), zap.Error(err))
		return
	}

	i.notifier.Notify(updated.Phone, paymentRequestFailedMessage)
	i.sessions.Complete(updated.Phone, updated.ID)
}

func initiationFailureReason(err error) string {
	var extErr *models.ExternalServiceError
	switch {
	case errors.Is(err, models.ErrQueueFull):
		return "payment queue full"
	case errors.Is(err, context.DeadlineExceeded):
		return "payment request timed out"
	case errors.As(err, &extErr):
		return fmt.Sprintf("payment request failed: %v", extErr.Err)
	default:
		return fmt.Sprintf("payment request failed: %v", err)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rookgm/chatpesa/internal/logger"
	"github.com/rookgm/chatpesa/internal/models"
	"github.com/rookgm/chatpesa/internal/phone"
	"go.uber.org/zap"
)

// Reconciler applies provider payment results to orders
type Reconciler struct {
	repo     OrderRepository
	notifier Notifier
	sessions SessionCompleter
}

// NewReconciler creates new Reconciler instance
func NewReconciler(repo OrderRepository, notifier Notifier, sessions SessionCompleter) *Reconciler {
	return &Reconciler{
		repo:     repo,
		notifier: notifier,
		sessions: sessions,
	}
}

// Reconcile matches payment result to an order and settles it.
// Only the call that settles the order notifies the customer, replays are reported as duplicate.
// Results that match no order or several orders are not applied and wrap ErrUnreconciledCallback.
func (r *Reconciler) Reconcile(ctx context.Context, res models.PaymentResult) (models.ReconcileOutcome, error) {
	order, err := r.match(ctx, res)
	if err != nil {
		if errors.Is(err, models.ErrUnreconciledCallback) {
			logger.Log.Warn("unreconciled payment callback",
				zap.String("account_reference", res.AccountReference),
				zap.String("checkout_request_id", res.CheckoutRequestID),
				zap.String("merchant_request_id", res.MerchantRequestID),
				zap.String("phone", res.Phone),
				zap.Int64("amount", res.Amount),
				zap.Int64("result_code", res.ResultCode),
				zap.Error(err))
			return models.OutcomeUnreconciled, err
		}
		return "", err
	}

	if order.IsTerminal() {
		logger.Log.Debug("callback for settled order", zap.String("order", order.ID), zap.String("status", order.Status))
		return models.OutcomeDuplicate, nil
	}

	var (
		updated *models.Order
		outcome models.ReconcileOutcome
	)
	if res.Succeeded() {
		outcome = models.OutcomePaid
		updated, err = r.repo.MarkPaid(ctx, order.ID, res.Receipt, res.PayerName)
	} else {
		outcome = models.OutcomeFailed
		updated, err = r.repo.MarkFailed(ctx, order.ID, callbackFailureReason(res))
	}
	if err != nil {
		if errors.Is(err, models.ErrAlreadyTerminal) {
			logger.Log.Debug("order settled concurrently", zap.String("order", order.ID))
			return models.OutcomeDuplicate, nil
		}
		return "", fmt.Errorf("settle order %s: %w", order.ID, err)
	}

	logger.Log.Info("order settled",
		zap.String("order", updated.ID),
		zap.String("status", updated.Status),
		zap.String("receipt", updated.Receipt))

	if outcome == models.OutcomePaid {
		r.notifier.Notify(updated.Phone, paidMessage(updated))
	} else {
		r.notifier.Notify(updated.Phone, paymentFailedMessage(updated))
	}
	r.sessions.Complete(updated.Phone, updated.ID)

	return outcome, nil
}

// match finds order by account reference, then checkout request id, then phone and amount
func (r *Reconciler) match(ctx context.Context, res models.PaymentResult) (*models.Order, error) {
	if ref := strings.TrimSpace(res.AccountReference); ref != "" {
		order, err := r.repo.GetOrderByID(ctx, ref)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, models.ErrDataNotFound) {
			return nil, err
		}
	}

	if res.CheckoutRequestID != "" {
		order, err := r.repo.GetOrderByCheckoutID(ctx, res.CheckoutRequestID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, models.ErrDataNotFound) {
			return nil, err
		}
	}

	p := phone.Normalize(res.Phone)
	if p == "" || res.Amount <= 0 {
		return nil, fmt.Errorf("%w: no phone or amount to match", models.ErrUnreconciledCallback)
	}

	pending, err := r.repo.ListPendingByPhone(ctx, p)
	if err != nil {
		return nil, err
	}

	var candidates []models.Order
	for _, order := range pending {
		if order.Amount == res.Amount {
			candidates = append(candidates, order)
		}
	}
	if len(candidates) != 1 {
		return nil, fmt.Errorf("%w: %d pending orders match phone and amount", models.ErrUnreconciledCallback, len(candidates))
	}

	return &candidates[0], nil
}

func callbackFailureReason(res models.PaymentResult) string {
	if desc := strings.TrimSpace(res.ResultDesc); desc != "" {
		return desc
	}
	return fmt.Sprintf("payment failed with result code %d", res.ResultCode)
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rookgm/chatpesa/internal/logger"
	"github.com/rookgm/chatpesa/internal/models"
	"github.com/rookgm/chatpesa/internal/mpesa"
	"go.uber.org/zap"
)

// reconcileTimeout bounds settlement of one callback
const reconcileTimeout = 30 * time.Second

type PaymentReconciler interface {
	Reconcile(ctx context.Context, res models.PaymentResult) (models.ReconcileOutcome, error)
}

// CallbackHandler represents HTTP handler for payment provider callbacks
type CallbackHandler struct {
	svc     PaymentReconciler
	timeout time.Duration
}

// NewCallbackHandler creates new CallbackHandler instance
func NewCallbackHandler(svc PaymentReconciler) *CallbackHandler {
	return &CallbackHandler{svc: svc, timeout: reconcileTimeout}
}

// ReceiveCallback handles STK push result
// 200 — always, provider retries anything else.
func (ch *CallbackHandler) ReceiveCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		ch.process(r)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(mpesa.Accepted); err != nil {
			return
		}
	}
}

func (ch *CallbackHandler) process(r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Log.Error("panic handling payment callback", zap.Any("panic", rec))
		}
	}()

	cb, err := mpesa.ParseCallback(r.Body)
	if err != nil {
		logger.Log.Warn("malformed payment callback", zap.Error(err))
		return
	}

	res := cb.PaymentResult()
	// settlement must not be cut short by provider closing the connection
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), ch.timeout)
	defer cancel()

	outcome, err := ch.svc.Reconcile(ctx, res)
	if err != nil {
		if errors.Is(err, models.ErrUnreconciledCallback) {
			return
		}
		logger.Log.Error("reconcile payment callback",
			zap.String("checkout_request_id", res.CheckoutRequestID),
			zap.Error(err))
		return
	}

	logger.Log.Info("payment callback processed",
		zap.String("checkout_request_id", res.CheckoutRequestID),
		zap.String("outcome", string(outcome)))
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rookgm/chatpesa/internal/logger"
	"github.com/rookgm/chatpesa/internal/models"
	"go.uber.org/zap"
)

type OrderService interface {
	ListOrders(ctx context.Context) ([]models.Order, error)
}

// OrderHandler represents HTTP handler for order-related requests
type OrderHandler struct {
	svc OrderService
}

// NewOrderHandler creates new OrderHandler instance
func NewOrderHandler(svc OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

type ListOrdersResp struct {
	ID           string  `json:"id"`
	Phone        string  `json:"phone"`
	CustomerName string  `json:"customer_name"`
	Amount       int64   `json:"amount"`
	Status       string  `json:"status"`
	Receipt      string  `json:"receipt"`
	CreatedAt    string  `json:"created_at"`
	PaidAt       *string `json:"paid_at"`
}

// ListOrders returns all orders for dashboard, newest first
// 200 — успешная обработка запроса.
// 401 — нет или неверный токен панели.
// 500 — внутренняя ошибка сервера.
func (oh *OrderHandler) ListOrders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if payload, ok := getAuthPayload(r.Context(), authPayloadKey); ok {
			logger.Log.Debug("list orders", zap.String("subject", payload.Subject))
		}

		orders, err := oh.svc.ListOrders(r.Context())
		if err != nil {
			logger.Log.Error("list orders", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		resp := make([]ListOrdersResp, 0, len(orders))
		for _, order := range orders {
			item := ListOrdersResp{
				ID:           order.ID,
				Phone:        order.Phone,
				CustomerName: order.CustomerName,
				Amount:       order.Amount,
				Status:       order.Status,
				Receipt:      order.Receipt,
				CreatedAt:    order.CreatedAt.Format(time.RFC3339),
			}
			if order.PaidAt != nil {
				paidAt := order.PaidAt.Format(time.RFC3339)
				item.PaidAt = &paidAt
			}
			resp = append(resp, item)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(resp); err != nil {
			return
		}
	}
}

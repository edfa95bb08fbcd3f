package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/rookgm/chatpesa/internal/handler/http/mocks"
	"github.com/rookgm/chatpesa/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderHandler_ListOrders(t *testing.T) {
	createdAt := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	paidAt := createdAt.Add(2 * time.Minute)
	paidAtStr := paidAt.Format(time.RFC3339)

	tests := []struct {
		name           string
		setup          func(t *testing.T) *mocks.MockOrderService
		wantStatusCode int
		wantBody       []ListOrdersResp
	}{
		{
			// 200 — успешная обработка запроса.
			name: "valid_request_return_200",
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)

				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().ListOrders(gomock.Any()).Return([]models.Order{
					{
						ID:           "CP00000000B2",
						Phone:        "254722000111",
						CustomerName: "Jane",
						Amount:       50,
						Status:       models.OrderStatusPaid,
						Receipt:      "ABC123",
						CreatedAt:    createdAt,
						PaidAt:       &paidAt,
					},
					{
						ID:        "CP00000000A1",
						Phone:     "254733000222",
						Amount:    100,
						Status:    models.OrderStatusAwaitingPayment,
						CreatedAt: createdAt,
					},
				}, nil)
				return svcMock
			},
			wantStatusCode: http.StatusOK,
			wantBody: []ListOrdersResp{
				{
					ID:           "CP00000000B2",
					Phone:        "254722000111",
					CustomerName: "Jane",
					Amount:       50,
					Status:       models.OrderStatusPaid,
					Receipt:      "ABC123",
					CreatedAt:    createdAt.Format(time.RFC3339),
					PaidAt:       &paidAtStr,
				},
				{
					ID:        "CP00000000A1",
					Phone:     "254733000222",
					Amount:    100,
					Status:    models.OrderStatusAwaitingPayment,
					CreatedAt: createdAt.Format(time.RFC3339),
				},
			},
		},
		{
			// 200 — заказов нет, пустой список.
			name: "no_orders_return_empty_list",
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)

				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().ListOrders(gomock.Any()).Return(nil, nil)
				return svcMock
			},
			wantStatusCode: http.StatusOK,
			wantBody:       []ListOrdersResp{},
		},
		{
			// 500 — внутренняя ошибка сервера.
			name: "internal_error_return_500",
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)

				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().ListOrders(gomock.Any()).Return(nil, errors.New("db down"))
				return svcMock
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			ctx := context.WithValue(req.Context(), authPayloadKey, &models.TokenPayload{Subject: "dashboard"})

			w := httptest.NewRecorder()
			handler := NewOrderHandler(tt.setup(t))
			h := handler.ListOrders()
			h(w, req.WithContext(ctx))

			res := w.Result()
			defer res.Body.Close()
			assert.Equal(t, tt.wantStatusCode, res.StatusCode)

			if tt.wantStatusCode != http.StatusOK {
				return
			}

			body, err := io.ReadAll(res.Body)
			require.NoError(t, err)

			var got []ListOrdersResp
			require.NoError(t, json.Unmarshal(body, &got))
			if diff := cmp.Diff(tt.wantBody, got); diff != "" {
				t.Errorf("ListOrders() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOrderHandler_ListOrdersEmptyIsArray(t *testing.T) {
	ctrl := gomock.NewController(t)
	svcMock := mocks.NewMockOrderService(ctrl)
	svcMock.EXPECT().ListOrders(gomock.Any()).Return(nil, nil)

	w := httptest.NewRecorder()
	NewOrderHandler(svcMock).ListOrders()(w, httptest.NewRequest(http.MethodGet, "/api/orders", nil))

	assert.JSONEq(t, "[]", w.Body.String())
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rookgm/chatpesa/internal/models"
	"github.com/rookgm/chatpesa/internal/repository/postgres"
)

const pgErrUniqueViolationCode = "23505"

// attempts to insert order when generated id collides
const createOrderAttempts = 3

const orderColumns = `id, phone, customer_name, amount, status,
		COALESCE(receipt, ''), COALESCE(checkout_request_id, ''), COALESCE(failure_reason, ''),
		created_at, paid_at`

const (
	insertOrderQuery = `
						INSERT INTO orders (id, phone, customer_name, amount, status)
						VALUES ($1, $2, $3, $4, $5)
						RETURNING ` + orderColumns

	selectOrderByIDQuery = `
						SELECT ` + orderColumns + ` FROM orders
						WHERE id = $1`

	selectOrderByCheckoutIDQuery = `
						SELECT ` + orderColumns + ` FROM orders
						WHERE checkout_request_id = $1`

	selectPendingByPhoneQuery = `
						SELECT ` + orderColumns + ` FROM orders
						WHERE phone = $1 AND status = 'AWAITING_PAYMENT'
						ORDER BY created_at DESC, seq DESC`

	selectOrdersQuery = `
						SELECT ` + orderColumns + ` FROM orders
						ORDER BY created_at DESC, seq DESC`

	selectStalePendingQuery = `
						SELECT ` + orderColumns + ` FROM orders
						WHERE status = 'AWAITING_PAYMENT' AND created_at < $1
						ORDER BY created_at, seq`

	// terminal transitions are conditional, only one writer can win
	markPaidQuery = `
						UPDATE orders
						SET status = 'PAID', receipt = $2,
							customer_name = COALESCE(NULLIF($3::text, ''), customer_name),
							paid_at = now()
						WHERE id = $1 AND status = 'AWAITING_PAYMENT'
						RETURNING ` + orderColumns

	markFailedQuery = `
						UPDATE orders
						SET status = 'FAILED', failure_reason = $2
						WHERE id = $1 AND status = 'AWAITING_PAYMENT'
						RETURNING ` + orderColumns

	attachCheckoutIDQuery = `
						UPDATE orders
						SET checkout_request_id = $2
						WHERE id = $1 AND checkout_request_id IS NULL`
)

// OrderRepository implements OrderRepository interface
type OrderRepository struct {
	db *postgres.DB
}

// NewOrderRepository creates new OrderRepository instance
func NewOrderRepository(db *postgres.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateOrder inserts new order awaiting payment
func (or *OrderRepository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := models.ValidateAmount(order.Amount); err != nil {
		return nil, err
	}

	var err error
	for i := 0; i < createOrderAttempts; i++ {
		var created *models.Order
		created, err = scanOrder(or.db.QueryRow(ctx, insertOrderQuery,
			models.NewOrderID(), order.Phone, order.CustomerName, order.Amount, models.OrderStatusAwaitingPayment))
		if err == nil {
			return created, nil
		}
		if or.db.ErrorCode(err) != pgErrUniqueViolationCode {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %v", models.ErrConflictData, err)
}

// GetOrderByID returns order by id
func (or *OrderRepository) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	order, err := scanOrder(or.db.QueryRow(ctx, selectOrderByIDQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDataNotFound
		}
		return nil, err
	}

	return order, nil
}

// GetOrderByCheckoutID returns order by provider checkout request id
func (or *OrderRepository) GetOrderByCheckoutID(ctx context.Context, checkoutID string) (*models.Order, error) {
	order, err := scanOrder(or.db.QueryRow(ctx, selectOrderByCheckoutIDQuery, checkoutID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDataNotFound
		}
		return nil, err
	}

	return order, nil
}

// GetPendingByPhone returns the newest order awaiting payment
func (or *OrderRepository) GetPendingByPhone(ctx context.Context, phone string) (*models.Order, error) {
	orders, err := or.ListPendingByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	if len(orders) == 0 {
		return nil, models.ErrDataNotFound
	}

	return &orders[0], nil
}

// ListPendingByPhone returns orders awaiting payment, newest first
func (or *OrderRepository) ListPendingByPhone(ctx context.Context, phone string) ([]models.Order, error) {
	return or.list(ctx, selectPendingByPhoneQuery, phone)
}

// ListOrders returns all orders, newest first
func (or *OrderRepository) ListOrders(ctx context.Context) ([]models.Order, error) {
	return or.list(ctx, selectOrdersQuery)
}

// ListStalePending returns orders still awaiting payment that were created before olderThan
func (or *OrderRepository) ListStalePending(ctx context.Context, olderThan time.Time) ([]models.Order, error) {
	return or.list(ctx, selectStalePendingQuery, olderThan)
}

// AttachCheckoutID stores provider checkout request id, it is set only once
func (or *OrderRepository) AttachCheckoutID(ctx context.Context, id, checkoutID string) error {
	_, err := or.db.Exec(ctx, attachCheckoutIDQuery, id, checkoutID)
	if err != nil {
		if or.db.ErrorCode(err) == pgErrUniqueViolationCode {
			return models.ErrConflictData
		}
		return err
	}

	return nil
}

// MarkPaid moves order awaiting payment to PAID
func (or *OrderRepository) MarkPaid(ctx context.Context, id, receipt, payerName string) (*models.Order, error) {
	order, err := scanOrder(or.db.QueryRow(ctx, markPaidQuery, id, receipt, payerName))
	if err != nil {
		return nil, or.transitionError(ctx, id, err)
	}

	return order, nil
}

// MarkFailed moves order awaiting payment to FAILED
func (or *OrderRepository) MarkFailed(ctx context.Context, id, reason string) (*models.Order, error) {
	order, err := scanOrder(or.db.QueryRow(ctx, markFailedQuery, id, reason))
	if err != nil {
		return nil, or.transitionError(ctx, id, err)
	}

	return order, nil
}

// transitionError explains why conditional update touched no rows
func (or *OrderRepository) transitionError(ctx context.Context, id string, err error) error {
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	if _, err := or.GetOrderByID(ctx, id); err != nil {
		return err
	}

	return models.ErrAlreadyTerminal
}

func (or *OrderRepository) list(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := or.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []models.Order{}

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	order := models.Order{}
	err := row.Scan(&order.ID, &order.Phone, &order.CustomerName, &order.Amount, &order.Status,
		&order.Receipt, &order.CheckoutRequestID, &order.FailureReason,
		&order.CreatedAt, &order.PaidAt)
	if err != nil {
		return nil, err
	}

	return &order, nil
}

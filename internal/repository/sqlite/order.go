package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rookgm/chatpesa/internal/models"
)

const createOrderAttempts = 3

const orderColumns = `id, phone, customer_name, amount, status,
		COALESCE(receipt, ''), COALESCE(checkout_request_id, ''), COALESCE(failure_reason, ''),
		created_at, paid_at`

const (
	insertOrderQuery = `
						INSERT INTO orders (id, phone, customer_name, amount, status, created_at)
						VALUES (?, ?, ?, ?, ?, ?)
						RETURNING ` + orderColumns

	selectOrderByIDQuery = `
						SELECT ` + orderColumns + ` FROM orders
						WHERE id = ?`

	selectOrderByCheckoutIDQuery = `
						SELECT ` + orderColumns + ` FROM orders
						WHERE checkout_request_id = ?`

	selectPendingByPhoneQuery = `
						SELECT ` + orderColumns + ` FROM orders
						WHERE phone = ? AND status = 'AWAITING_PAYMENT'
						ORDER BY created_at DESC, seq DESC`

	selectOrdersQuery = `
						SELECT ` + orderColumns + ` FROM orders
						ORDER BY created_at DESC, seq DESC`

	selectStalePendingQuery = `
						SELECT ` + orderColumns + ` FROM orders
						WHERE status = 'AWAITING_PAYMENT' AND created_at < ?
						ORDER BY created_at, seq`

	markPaidQuery = `
						UPDATE orders
						SET status = 'PAID', receipt = ?,
							customer_name = COALESCE(NULLIF(?, ''), customer_name),
							paid_at = ?
						WHERE id = ? AND status = 'AWAITING_PAYMENT'
						RETURNING ` + orderColumns

	markFailedQuery = `
						UPDATE orders
						SET status = 'FAILED', failure_reason = ?
						WHERE id = ? AND status = 'AWAITING_PAYMENT'
						RETURNING ` + orderColumns

	attachCheckoutIDQuery = `
						UPDATE orders
						SET checkout_request_id = ?
						WHERE id = ? AND checkout_request_id IS NULL`
)

// OrderRepository implements OrderRepository interface on sqlite
type OrderRepository struct {
	db  *DB
	now func() time.Time
}

// NewOrderRepository creates new OrderRepository instance
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db, now: time.Now}
}

// CreateOrder inserts new order awaiting payment
func (or *OrderRepository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := models.ValidateAmount(order.Amount); err != nil {
		return nil, err
	}

	var err error
	for i := 0; i < createOrderAttempts; i++ {
		var created *models.Order
		created, err = scanOrder(or.db.QueryRowContext(ctx, insertOrderQuery,
			models.NewOrderID(), order.Phone, order.CustomerName, order.Amount,
			models.OrderStatusAwaitingPayment, or.now().UnixNano()))
		if err == nil {
			return created, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %v", models.ErrConflictData, err)
}

// GetOrderByID returns order by id
func (or *OrderRepository) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	return or.get(ctx, selectOrderByIDQuery, id)
}

// GetOrderByCheckoutID returns order by provider checkout request id
func (or *OrderRepository) GetOrderByCheckoutID(ctx context.Context, checkoutID string) (*models.Order, error) {
	return or.get(ctx, selectOrderByCheckoutIDQuery, checkoutID)
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
	return or.list(ctx, selectStalePendingQuery, olderThan.UnixNano())
}

// AttachCheckoutID stores provider checkout request id, it is set only once
func (or *OrderRepository) AttachCheckoutID(ctx context.Context, id, checkoutID string) error {
	_, err := or.db.ExecContext(ctx, attachCheckoutIDQuery, checkoutID, id)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrConflictData
		}
		return err
	}

	return nil
}

// MarkPaid moves order awaiting payment to PAID
func (or *OrderRepository) MarkPaid(ctx context.Context, id, receipt, payerName string) (*models.Order, error) {
	order, err := scanOrder(or.db.QueryRowContext(ctx, markPaidQuery, receipt, payerName, or.now().UnixNano(), id))
	if err != nil {
		return nil, or.transitionError(ctx, id, err)
	}

	return order, nil
}

// MarkFailed moves order awaiting payment to FAILED
func (or *OrderRepository) MarkFailed(ctx context.Context, id, reason string) (*models.Order, error) {
	order, err := scanOrder(or.db.QueryRowContext(ctx, markFailedQuery, reason, id))
	if err != nil {
		return nil, or.transitionError(ctx, id, err)
	}

	return order, nil
}

func (or *OrderRepository) transitionError(ctx context.Context, id string, err error) error {
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if _, err := or.GetOrderByID(ctx, id); err != nil {
		return err
	}

	return models.ErrAlreadyTerminal
}

func (or *OrderRepository) get(ctx context.Context, query string, args ...any) (*models.Order, error) {
	order, err := scanOrder(or.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrDataNotFound
		}
		return nil, err
	}

	return order, nil
}

func (or *OrderRepository) list(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := or.db.QueryContext(ctx, query, args...)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*models.Order, error) {
	var (
		order     models.Order
		createdAt int64
		paidAt    sql.NullInt64
	)

	err := row.Scan(&order.ID, &order.Phone, &order.CustomerName, &order.Amount, &order.Status,
		&order.Receipt, &order.CheckoutRequestID, &order.FailureReason,
		&createdAt, &paidAt)
	if err != nil {
		return nil, err
	}

	order.CreatedAt = time.Unix(0, createdAt).UTC()
	if paidAt.Valid {
		t := time.Unix(0, paidAt.Int64).UTC()
		order.PaidAt = &t
	}

	return &order, nil
}

// isUniqueViolation matches sqlite constraint error text, driver error codes are not exported in a stable way
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

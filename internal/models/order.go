package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

//AWAITING_PAYMENT — заказ создан, ждём подтверждения оплаты от провайдера;
//PAID — провайдер подтвердил оплату;
//FAILED — оплата не прошла, отменена или просрочена.

// order status
const (
	OrderStatusAwaitingPayment = "AWAITING_PAYMENT"
	OrderStatusPaid            = "PAID"
	OrderStatusFailed          = "FAILED"
)

// MinOrderAmount is the smallest amount a customer may order
const MinOrderAmount = 10

const orderIDPrefix = "CP"

// Order is order entity
type Order struct {
	ID                string
	Phone             string
	CustomerName      string
	Amount            int64
	Status            string
	Receipt           string
	CheckoutRequestID string
	FailureReason     string
	CreatedAt         time.Time
	PaidAt            *time.Time
}

// IsTerminal reports whether no further status change is allowed
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusPaid || o.Status == OrderStatusFailed
}

// ValidateAmount checks business rule for order amount
func ValidateAmount(amount int64) error {
	if amount < MinOrderAmount {
		return ErrInvalidAmount
	}
	return nil
}

// NewOrderID generates order id, it is also sent to the provider as account reference,
// so it must stay within 12 characters.
func NewOrderID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return orderIDPrefix + strings.ToUpper(id[:10])
}

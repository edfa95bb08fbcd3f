package models

// PaymentResult is provider payment confirmation reduced to the fields used for matching
type PaymentResult struct {
	AccountReference  string
	CheckoutRequestID string
	MerchantRequestID string
	ResultCode        int64
	ResultDesc        string
	Receipt           string
	// Phone is the payer phone as sent by provider, not normalized
	Phone     string
	Amount    int64
	PayerName string
}

// Succeeded reports whether provider confirmed the payment
func (pr PaymentResult) Succeeded() bool {
	return pr.ResultCode == 0
}

// ReconcileOutcome is result of payment callback reconciliation
type ReconcileOutcome string

const (
	OutcomePaid         ReconcileOutcome = "paid"
	OutcomeFailed       ReconcileOutcome = "failed"
	OutcomeDuplicate    ReconcileOutcome = "duplicate"
	OutcomeUnreconciled ReconcileOutcome = "unreconciled"
)

// ChatMessage is inbound chat message
type ChatMessage struct {
	From        string
	Body        string
	ProfileName string
}

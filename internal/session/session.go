// Package session holds the per-customer chat conversation state machine.
//
// Next is a pure transition function over Step and the customer input; it
// decides what should happen but performs no side effects. The caller
// applies the returned Transition once the side effect (order creation,
// payment enqueue) has succeeded, so a failed side effect leaves the
// session where it was.
package session

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rookgm/chatpesa/internal/models"
)

// Step is conversation state
type Step string

const (
	StepStart            Step = "START"
	StepMenu             Step = "MENU"
	StepAmount           Step = "AMOUNT"
	StepConfirm          Step = "CONFIRM"
	StepAwaitingCallback Step = "AWAITING_CALLBACK"
	StepDone             Step = "DONE"
)

// Session is conversation with one customer
type Session struct {
	Phone          string
	Step           Step
	PendingOrderID string
	UpdatedAt      time.Time
}

// Action is side effect requested by transition
type Action int

const (
	ActionWelcome Action = iota
	ActionWelcomeAskAmount
	ActionShowMenu
	ActionAskAmount
	ActionInvalidAmount
	ActionAmountTooLow
	ActionCreateOrder
	ActionRepeatConfirm
	ActionInitiatePayment
	ActionCancelOrder
	ActionRemindPending
)

// Transition is result of applying input to a step
type Transition struct {
	Next   Step
	Action Action
	// Amount is set for ActionCreateOrder
	Amount int64
}

var (
	menuStartTokens = tokens("1", "start", "start payment", "pay")
	confirmTokens   = tokens("pay", "yes", "1")
	cancelTokens    = tokens("cancel", "no", "2")
	currencyPrefix  = strings.NewReplacer("kes", "", "ksh", "", "sh", "", ",", "", " ", "")
)

// Next returns transition for input received in step
func Next(step Step, input string) Transition {
	in := strings.ToLower(strings.TrimSpace(input))

	switch step {
	case StepMenu:
		if menuStartTokens[in] {
			return Transition{Next: StepAmount, Action: ActionAskAmount}
		}
		return Transition{Next: StepMenu, Action: ActionShowMenu}
	case StepAmount:
		amount, err := ParseAmount(in)
		switch {
		case err == nil:
			return Transition{Next: StepConfirm, Action: ActionCreateOrder, Amount: amount}
		case errors.Is(err, models.ErrInvalidAmount):
			return Transition{Next: StepAmount, Action: ActionAmountTooLow}
		default:
			return Transition{Next: StepAmount, Action: ActionInvalidAmount}
		}
	case StepConfirm:
		switch {
		case confirmTokens[in]:
			return Transition{Next: StepAwaitingCallback, Action: ActionInitiatePayment}
		case cancelTokens[in]:
			return Transition{Next: StepMenu, Action: ActionCancelOrder}
		}
		return Transition{Next: StepConfirm, Action: ActionRepeatConfirm}
	case StepAwaitingCallback:
		return Transition{Next: StepAwaitingCallback, Action: ActionRemindPending}
	case StepDone:
		return Transition{Next: StepMenu, Action: ActionShowMenu}
	default:
		// START and unknown steps
		if menuStartTokens[in] {
			return Transition{Next: StepAmount, Action: ActionWelcomeAskAmount}
		}
		return Transition{Next: StepMenu, Action: ActionWelcome}
	}
}

// ParseAmount parses whole amount typed by customer, "KES 1,000" is accepted
func ParseAmount(in string) (int64, error) {
	s := currencyPrefix.Replace(strings.ToLower(strings.TrimSpace(in)))
	if s == "" {
		return 0, models.ErrInvalidInput
	}

	amount, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, models.ErrInvalidInput
	}

	if err := models.ValidateAmount(amount); err != nil {
		return 0, err
	}

	return amount, nil
}

func tokens(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

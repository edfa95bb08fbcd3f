package service

import (
	"fmt"

	"github.com/rookgm/chatpesa/internal/models"
)

const (
	welcomeMessage = "Welcome to ChatPesa! Pay for your order with M-Pesa right here in the chat."

	menuMessage = "Reply 1 or START PAYMENT to make a payment."

	askAmountMessage = "How much would you like to pay? Reply with the amount in KES, e.g. 500."

	invalidAmountMessage = "Please reply with a whole amount in KES, e.g. 500."

	tryAgainMessage = "Something went wrong on our side. Please try again."

	paymentPromptSentMessage = "We have sent an M-Pesa prompt to your phone. Enter your PIN to complete the payment."

	pendingPaymentMessage = "Please complete the pending M-Pesa payment on your phone. We will message you once it is confirmed."

	orderUnavailableMessage = "This order can no longer be paid."

	paymentRequestFailedMessage = "We could not start the M-Pesa payment. Please try again."
)

var amountTooLowMessage = fmt.Sprintf("The minimum amount is KES %d. Please enter a higher amount.", models.MinOrderAmount)

func confirmMessage(order *models.Order) string {
	if order == nil {
		return "Reply PAY to confirm or CANCEL to stop."
	}
	return fmt.Sprintf("Order %s: KES %d. Reply PAY to confirm or CANCEL to stop.", order.ID, order.Amount)
}

func cancelledMessage(orderID string) string {
	return fmt.Sprintf("Order %s cancelled. %s", orderID, menuMessage)
}

func paidMessage(order *models.Order) string {
	return fmt.Sprintf("Payment received! Order %s, KES %d, receipt %s. Thank you.", order.ID, order.Amount, order.Receipt)
}

func paymentFailedMessage(order *models.Order) string {
	return fmt.Sprintf("Payment for order %s failed: %s. %s", order.ID, order.FailureReason, menuMessage)
}

func orderExpiredMessage(order *models.Order) string {
	return fmt.Sprintf("Order %s expired before payment was received. %s", order.ID, menuMessage)
}

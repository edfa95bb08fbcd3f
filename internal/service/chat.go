package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rookgm/chatpesa/internal/logger"
	"github.com/rookgm/chatpesa/internal/models"
	"github.com/rookgm/chatpesa/internal/phone"
	"github.com/rookgm/chatpesa/internal/session"
	"go.uber.org/zap"
)

// SessionStore gives exclusive access to customer session
type SessionStore interface {
	Do(phone string, fn func(s *session.Session))
}

// MessageRepository keeps conversation history
type MessageRepository interface {
	// SaveMessage appends message to customer history
	SaveMessage(ctx context.Context, msg *models.Message) error
}

// ChatService turns inbound chat messages into orders and payments
type ChatService struct {
	repo     OrderRepository
	messages MessageRepository
	sessions SessionStore
	payments PaymentInitiator
}

// NewChatService creates new ChatService instance
func NewChatService(repo OrderRepository, messages MessageRepository, sessions SessionStore, payments PaymentInitiator) *ChatService {
	return &ChatService{
		repo:     repo,
		messages: messages,
		sessions: sessions,
		payments: payments,
	}
}

// HandleMessage advances customer conversation and returns the reply text.
// Messages of one customer are handled one at a time.
func (cs *ChatService) HandleMessage(ctx context.Context, msg models.ChatMessage) string {
	p := phone.Normalize(msg.From)
	if p == "" {
		logger.Log.Warn("chat message without sender")
		return menuMessage
	}

	var reply string
	cs.sessions.Do(p, func(s *session.Session) {
		cs.record(ctx, p, models.MessageDirectionInbound, msg.Body)
		reply = cs.advance(ctx, s, msg)
		cs.record(ctx, p, models.MessageDirectionOutbound, reply)
	})

	return reply
}

// record saves message to history, conversation goes on when it fails
func (cs *ChatService) record(ctx context.Context, phone, direction, body string) {
	err := cs.messages.SaveMessage(ctx, &models.Message{
		Phone:     phone,
		Direction: direction,
		Body:      body,
	})
	if err != nil {
		logger.Log.Error("save chat message",
			zap.String("phone", phone),
			zap.String("direction", direction),
			zap.Error(err))
	}
}

func (cs *ChatService) advance(ctx context.Context, s *session.Session, msg models.ChatMessage) string {
	if s.Step == session.StepAwaitingCallback && cs.pendingSettled(ctx, s.PendingOrderID) {
		// settlement notice may have been lost
		s.Step = session.StepDone
	}

	tr := session.Next(s.Step, msg.Body)
	logger.Log.Debug("session transition",
		zap.String("phone", s.Phone),
		zap.String("from", string(s.Step)),
		zap.String("to", string(tr.Next)))

	var reply string
	switch tr.Action {
	case session.ActionWelcome:
		reply = welcomeMessage + "\n\n" + menuMessage
	case session.ActionWelcomeAskAmount:
		reply = welcomeMessage + "\n\n" + askAmountMessage
	case session.ActionShowMenu:
		reply = menuMessage
	case session.ActionAskAmount:
		reply = askAmountMessage
	case session.ActionInvalidAmount:
		reply = invalidAmountMessage
	case session.ActionAmountTooLow:
		reply = amountTooLowMessage
	case session.ActionCreateOrder:
		order, err := cs.repo.CreateOrder(ctx, &models.Order{
			Phone:        s.Phone,
			CustomerName: strings.TrimSpace(msg.ProfileName),
			Amount:       tr.Amount,
		})
		if err != nil {
			logger.Log.Error("create order", zap.String("phone", s.Phone), zap.Error(err))
			return tryAgainMessage
		}
		logger.Log.Info("order created", zap.String("order", order.ID), zap.Int64("amount", order.Amount))
		s.PendingOrderID = order.ID
		reply = confirmMessage(order)
	case session.ActionRepeatConfirm:
		order, err := cs.repo.GetOrderByID(ctx, s.PendingOrderID)
		if err != nil {
			order = nil
		}
		reply = confirmMessage(order)
	case session.ActionInitiatePayment:
		order, err := cs.repo.GetOrderByID(ctx, s.PendingOrderID)
		if err != nil || order.IsTerminal() {
			if err != nil && !errors.Is(err, models.ErrDataNotFound) {
				logger.Log.Error("get pending order", zap.String("order", s.PendingOrderID), zap.Error(err))
				return tryAgainMessage
			}
			s.Step = session.StepMenu
			s.PendingOrderID = ""
			return orderUnavailableMessage + " " + menuMessage
		}
		cs.payments.Initiate(*order)
		reply = paymentPromptSentMessage
	case session.ActionCancelOrder:
		orderID := s.PendingOrderID
		if _, err := cs.repo.MarkFailed(ctx, orderID, ReasonCancelled); err != nil &&
			!errors.Is(err, models.ErrAlreadyTerminal) && !errors.Is(err, models.ErrDataNotFound) {
			logger.Log.Error("cancel order", zap.String("order", orderID), zap.Error(err))
			return tryAgainMessage
		}
		reply = cancelledMessage(orderID)
	case session.ActionRemindPending:
		reply = pendingPaymentMessage
	default:
		reply = menuMessage
	}

	s.Step = tr.Next
	if tr.Next == session.StepMenu {
		s.PendingOrderID = ""
	}

	return reply
}

// pendingSettled reports whether order the session waits for no longer awaits payment
func (cs *ChatService) pendingSettled(ctx context.Context, orderID string) bool {
	if orderID == "" {
		return true
	}

	order, err := cs.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, models.ErrDataNotFound) {
			return true
		}
		logger.Log.Error("get pending order", zap.String("order", orderID), zap.Error(err))
		return false
	}

	return order.IsTerminal()
}

package service

import (
	"context"
	"sync"
	"time"

	"github.com/rookgm/chatpesa/internal/logger"
	"go.uber.org/zap"
)

const defaultNotifyTimeout = 10 * time.Second

// MessageSender delivers chat message to customer
type MessageSender interface {
	SendMessage(ctx context.Context, to, body string) error
}

// ChatNotifier sends notifications in background, failures are only logged
type ChatNotifier struct {
	sender  MessageSender
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewChatNotifier creates new ChatNotifier instance
func NewChatNotifier(sender MessageSender, timeout time.Duration) *ChatNotifier {
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &ChatNotifier{
		sender:  sender,
		timeout: timeout,
	}
}

// Notify sends message to canonical phone on its own goroutine
func (cn *ChatNotifier) Notify(phone, message string) {
	cn.wg.Add(1)
	go func() {
		defer cn.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), cn.timeout)
		defer cancel()

		if err := cn.sender.SendMessage(ctx, phone, message); err != nil {
			logger.Log.Error("notify customer", zap.String("phone", phone), zap.Error(err))
			return
		}
		logger.Log.Debug("customer notified", zap.String("phone", phone))
	}()
}

// Wait blocks until notifications in flight are finished
func (cn *ChatNotifier) Wait() {
	cn.wg.Wait()
}

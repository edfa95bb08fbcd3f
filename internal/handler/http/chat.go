package handler

import (
	"context"
	"net/http"

	"github.com/rookgm/chatpesa/internal/logger"
	"github.com/rookgm/chatpesa/internal/models"
	"github.com/rookgm/chatpesa/internal/whatsapp"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks . AuthService,ChatService,OrderService,PaymentReconciler

const fallbackReply = "Sorry, something went wrong. Please try again."

type ChatService interface {
	HandleMessage(ctx context.Context, msg models.ChatMessage) string
}

// ChatHandler represents HTTP handler for inbound chat messages
type ChatHandler struct {
	svc ChatService
}

// NewChatHandler creates new ChatHandler instance
func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// ReceiveMessage handles WhatsApp webhook, reply is rendered as TwiML
// 200 — always, processing failures are only logged.
func (ch *ChatHandler) ReceiveMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := ch.reply(r)

		body, err := whatsapp.MessagingResponse(reply)
		if err != nil {
			logger.Log.Error("render twiml", zap.Error(err))
			body, _ = whatsapp.MessagingResponse()
		}

		w.Header().Set("Content-Type", whatsapp.ContentTypeTwiML)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

func (ch *ChatHandler) reply(r *http.Request) (reply string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Log.Error("panic handling chat message", zap.Any("panic", rec))
			reply = fallbackReply
		}
	}()

	if err := r.ParseForm(); err != nil {
		logger.Log.Warn("bad chat webhook form", zap.Error(err))
		return ""
	}

	msg := models.ChatMessage{
		From:        r.PostForm.Get("From"),
		Body:        r.PostForm.Get("Body"),
		ProfileName: r.PostForm.Get("ProfileName"),
	}
	if msg.From == "" {
		logger.Log.Warn("chat webhook without sender")
		return ""
	}

	return ch.svc.HandleMessage(r.Context(), msg)
}

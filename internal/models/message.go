package models

import "time"

//inbound — сообщение от покупателя;
//outbound — ответ сервиса.

// message direction
const (
	MessageDirectionInbound  = "inbound"
	MessageDirectionOutbound = "outbound"
)

// Message is chat message kept in conversation history
type Message struct {
	ID        int64
	Phone     string
	Direction string
	Body      string
	CreatedAt time.Time
}

package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/rookgm/chatpesa/internal/handler/http/mocks"
	"github.com/rookgm/chatpesa/internal/models"
	"github.com/rookgm/chatpesa/internal/whatsapp"
	"github.com/stretchr/testify/assert"
)

func TestChatHandler_ReceiveMessage(t *testing.T) {
	tests := []struct {
		name     string
		form     url.Values
		setup    func(t *testing.T) *mocks.MockChatService
		wantBody string
	}{
		{
			name: "reply_rendered_as_twiml",
			form: url.Values{"From": {"whatsapp:+254722000111"}, "Body": {"hi"}, "ProfileName": {"Jane"}},
			setup: func(t *testing.T) *mocks.MockChatService {
				ctrl := gomock.NewController(t)

				svcMock := mocks.NewMockChatService(ctrl)
				svcMock.EXPECT().HandleMessage(gomock.Any(), models.ChatMessage{
					From:        "whatsapp:+254722000111",
					Body:        "hi",
					ProfileName: "Jane",
				}).Return("Reply 1 & pay")
				return svcMock
			},
			wantBody: "<Message>Reply 1 &amp; pay</Message>",
		},
		{
			name: "missing_sender_empty_response",
			form: url.Values{"Body": {"hi"}},
			setup: func(t *testing.T) *mocks.MockChatService {
				ctrl := gomock.NewController(t)
				return mocks.NewMockChatService(ctrl)
			},
			wantBody: "<Response></Response>",
		},
		{
			name: "panic_still_replies",
			form: url.Values{"From": {"254722000111"}, "Body": {"hi"}},
			setup: func(t *testing.T) *mocks.MockChatService {
				ctrl := gomock.NewController(t)

				svcMock := mocks.NewMockChatService(ctrl)
				svcMock.EXPECT().HandleMessage(gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ any, _ models.ChatMessage) string { panic("boom") })
				return svcMock
			},
			wantBody: fallbackReply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			w := httptest.NewRecorder()
			NewChatHandler(tt.setup(t)).ReceiveMessage()(w, req)

			res := w.Result()
			defer res.Body.Close()
			assert.Equal(t, http.StatusOK, res.StatusCode)
			assert.Equal(t, whatsapp.ContentTypeTwiML, res.Header.Get("Content-Type"))
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

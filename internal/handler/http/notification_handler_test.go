package http_test

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	checkoutHttp "github.com/vasiliy-maslov/marketplace-checkout/internal/handler/http"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/notify"
)

func postSendEmail(t *testing.T, notifier *MockNotifier, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := checkoutHttp.NewRouter(checkoutHttp.RouterConfig{
		ServiceName:       "checkout-test",
		ServiceRoleSecret: testSecret,
		Notifications:     checkoutHttp.NewNotificationHandler(notifier),
	})
	req := httptest.NewRequest(http.MethodPost, "/functions/send-email", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+serviceRoleToken(t))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestNotificationHandler_handleSendEmail(t *testing.T) {
	t.Run("sent", func(t *testing.T) {
		notifier := new(MockNotifier)
		notifier.On("NotifyAndWait", mock.Anything, mock.MatchedBy(func(msgs []notify.Message) bool {
			return len(msgs) == 1 && msgs[0].Type == notify.EventWelcome && msgs[0].To == "new@example.com" && msgs[0].Data["name"] == "Sipho"
		})).Return([]notify.Result{{Type: notify.EventWelcome, To: "new@example.com"}}).Once()

		rr := postSendEmail(t, notifier, `{"type":"welcome","to":"new@example.com","data":{"name":"Sipho"}}`)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"success":true}`, rr.Body.String())
		notifier.AssertExpectations(t)
	})

	t.Run("provider failure is reported not raised", func(t *testing.T) {
		notifier := new(MockNotifier)
		notifier.On("NotifyAndWait", mock.Anything, mock.Anything).
			Return([]notify.Result{{Type: notify.EventPasswordReset, To: "a@example.com", Err: errors.New("provider down")}}).Once()

		rr := postSendEmail(t, notifier, `{"type":"password_reset","to":"a@example.com"}`)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"success":false,"error":"Email could not be sent"}`, rr.Body.String())
	})

	t.Run("unknown type", func(t *testing.T) {
		notifier := new(MockNotifier)
		rr := postSendEmail(t, notifier, `{"type":"newsletter","to":"a@example.com"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		notifier.AssertNotCalled(t, "NotifyAndWait", mock.Anything, mock.Anything)
	})

	t.Run("invalid recipient", func(t *testing.T) {
		notifier := new(MockNotifier)
		rr := postSendEmail(t, notifier, `{"type":"welcome","to":"not-an-email"}`)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "to must be a valid email address")
	})
}

package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/notify"
)

func TestEmailClient_Send(t *testing.T) {
	var got notify.Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.To == "bounce@example.com" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := notify.NewEmailClient(srv.URL+"/send-email", "key-1", time.Second)

	err := client.Send(context.Background(), notify.Message{
		Type: notify.EventWelcome,
		To:   "new@example.com",
		Data: map[string]any{"name": "Sipho"},
	})
	require.NoError(t, err)
	assert.Equal(t, notify.EventWelcome, got.Type)
	assert.Equal(t, "Sipho", got.Data["name"])

	err = client.Send(context.Background(), notify.Message{Type: notify.EventWelcome, To: "bounce@example.com"})
	require.ErrorIs(t, err, notify.ErrProviderRejected)
}

package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWebhookSenderPostsPayload(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "secret-token")
	require.NoError(t, s.Send(context.Background(), "+15550100", "Reminder: soon."))

	require.Equal(t, "Bearer secret-token", auth)
	require.Equal(t, "+15550100", got["to"])
	require.Equal(t, "Reminder: soon.", got["body"])
}

func TestWebhookSenderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "")
	require.Error(t, s.Send(context.Background(), "+15550100", "hello"))
}

func TestWebhookSenderRequiresURL(t *testing.T) {
	s := NewWebhookSender("", "")
	require.Error(t, s.Send(context.Background(), "+15550100", "hello"))
}

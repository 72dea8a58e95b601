package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/autopoint-backend/internal/config"
)

func TestSMSClientSend(t *testing.T) {
	var got smsRequest
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"abc","status":"waiting"}`))
	}))
	defer srv.Close()

	c := NewSMSClient(config.SMSConfig{APIURL: srv.URL, Login: "l", Password: "p", Sender: "4546", RPS: 100})
	require.NoError(t, c.Send(context.Background(), "+998901234567", CodeMessage("4821")))

	assert.Equal(t, "998901234567", got.MobilePhone)
	assert.Contains(t, got.Message, "4821")
	assert.Equal(t, "4546", got.From)
	assert.Equal(t, "l", user)
	assert.Equal(t, "p", pass)
}

func TestSMSClientVendorErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"HTTPFailure", http.StatusBadGateway, "upstream"},
		{"ErrorStatusInBody", http.StatusOK, `{"status":"error","message":"bad number"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewSMSClient(config.SMSConfig{APIURL: srv.URL, RPS: 100})
			assert.Error(t, c.Send(context.Background(), "+998901234567", "hi"))
		})
	}

	t.Run("NoVendorURL", func(t *testing.T) {
		assert.Error(t, NewSMSClient(config.SMSConfig{}).Send(context.Background(), "+998901234567", "hi"))
	})
}

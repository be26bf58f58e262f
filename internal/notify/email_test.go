package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_NotConfigured(t *testing.T) {
	c := New(Config{})
	assert.False(t, c.Configured())

	err := c.Send(context.Background(), Message{To: "u1@x.com"})
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, "Resend not configured", err.Error())
}

func TestSend_PostsToProvider(t *testing.T) {
	var got sendRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"em_1"}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "re_test", Endpoint: srv.URL + "/", From: "ROAM <noreply@roam.test>"})
	err := c.Send(context.Background(), Message{To: "u1@x.com", ToName: "Uma", Subject: "Approved", HTML: "<p>hi</p>"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer re_test", auth)
	assert.Equal(t, "ROAM <noreply@roam.test>", got.From)
	assert.Equal(t, []string{"Uma <u1@x.com>"}, got.To)
	assert.Equal(t, "Approved", got.Subject)
	assert.Equal(t, "<p>hi</p>", got.HTML)
}

func TestSend_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from address"}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "re_test", Endpoint: srv.URL})
	err := c.Send(context.Background(), Message{To: "u1@x.com"})

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusUnprocessableEntity, pe.StatusCode)
	assert.Contains(t, pe.Body, "invalid from address")
}

func TestSend_MissingRecipient(t *testing.T) {
	c := New(Config{APIKey: "re_test"})
	assert.Error(t, c.Send(context.Background(), Message{}))
}

func TestSend_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{APIKey: "re_test", Endpoint: srv.URL, Timeout: 20 * time.Millisecond})
	err := c.Send(context.Background(), Message{To: "u1@x.com"})
	assert.Error(t, err)
}

func TestSend_BreakerOpensOnServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{APIKey: "re_test", Endpoint: srv.URL, BreakerFailures: 2, BreakerCooldown: time.Minute})
	for i := 0; i < 2; i++ {
		var pe *ProviderError
		assert.True(t, errors.As(c.Send(context.Background(), Message{To: "u1@x.com"}), &pe))
	}

	err := c.Send(context.Background(), Message{To: "u1@x.com"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestSend_ClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(Config{APIKey: "re_test", Endpoint: srv.URL, BreakerFailures: 1})
	for i := 0; i < 3; i++ {
		var pe *ProviderError
		assert.True(t, errors.As(c.Send(context.Background(), Message{To: "u1@x.com"}), &pe))
	}
}

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

func TestNewClientRequiresSecret(t *testing.T) {
	_, err := NewClient("key", "  ")
	require.Error(t, err)
}

func TestCreateTransaction(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_key", user)
		assert.Equal(t, "rzp_secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_123","amount":7000,"currency":"INR","receipt":"receipt_order_1","status":"created"}`))
	}))
	defer srv.Close()

	client, err := NewClient("rzp_key", "rzp_secret", WithBaseURL(srv.URL+"/v1"))
	require.NoError(t, err)

	txn, err := client.CreateTransaction(context.Background(), 7000, "inr", "receipt_order_1")
	require.NoError(t, err)
	assert.Equal(t, "order_123", txn.ID)
	assert.Equal(t, int64(7000), txn.AmountCents)

	assert.Equal(t, float64(7000), got["amount"])
	assert.Equal(t, "INR", got["currency"])
	assert.Equal(t, "receipt_order_1", got["receipt"])
}

func TestCreateTransactionFailuresAreDependencyErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"non-2xx": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"bad"}`, http.StatusBadRequest)
		},
		"garbage body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		},
		"missing id": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"amount":7000}`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			client, err := NewClient("k", "s", WithBaseURL(srv.URL))
			require.NoError(t, err)
			_, err = client.CreateTransaction(context.Background(), 100, "INR", "r")
			assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))
		})
	}
}

func TestCreateTransactionTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewClient("k", "s", WithBaseURL(srv.URL), WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = client.CreateTransaction(context.Background(), 100, "INR", "r")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCreateTransactionRejectsNonPositiveAmount(t *testing.T) {
	client, err := NewClient("k", "s")
	require.NoError(t, err)
	_, err = client.CreateTransaction(context.Background(), 0, "INR", "r")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestSignatureVerification(t *testing.T) {
	sig := Sign("secret", "order_1", "pay_1")
	assert.Len(t, sig, 64)
	assert.True(t, VerifySignature("secret", "order_1", "pay_1", sig))
	assert.False(t, VerifySignature("secret", "order_1", "pay_1", " "+sig+" "), "whitespace is not stripped")
	assert.False(t, VerifySignature("secret", "order_1", "pay_1", strings.ToUpper(sig)), "hex case must match")
	assert.False(t, VerifySignature("secret", " order_1", "pay_1", Sign("secret", "order_1", "pay_1")), "refs are signed as received")
	assert.True(t, VerifySignature("secret", " order_1", "pay_1", Sign("secret", " order_1", "pay_1")))
	assert.False(t, VerifySignature("secret", "order_1", "pay_2", sig))
	assert.False(t, VerifySignature("other", "order_1", "pay_1", sig))
	assert.False(t, VerifySignature("secret", "order_1", "pay_1", ""))
}

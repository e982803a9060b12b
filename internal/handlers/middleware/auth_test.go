package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletledger/internal/handlers/actorctx"
)

// Allow to use a function as auth service
type authFunc func(ctx context.Context, r *http.Request) (uuid.UUID, error)

func (f authFunc) Authenticate(ctx context.Context, r *http.Request) (uuid.UUID, error) {
	return f(ctx, r)
}

func TestAuthMiddleware(t *testing.T) {
	// Handler writes actor id from context to response
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Must always be true cause middleware has to set actor or write error to response
		actorID, ok := actorctx.FromContext(r.Context())
		require.True(t, ok)

		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(actorID.String()))
		require.NoError(t, err, "should write actor id to response")
	})

	t.Run("auth ok", func(t *testing.T) {
		actorID := uuid.New()
		middleware := AuthMiddleware(authFunc(func(ctx context.Context, r *http.Request) (uuid.UUID, error) {
			return actorID, nil
		}))

		srv := httptest.NewServer(middleware(handler))
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/test")
		require.NoError(t, err, "should make request to test server")
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err, "should read response body")
		defer resp.Body.Close() // nolint:errcheck

		require.Equalf(t, http.StatusOK, resp.StatusCode, "should return status OK. Resp: %s", string(body))
		require.Equal(t, actorID.String(), string(body))
	})

	t.Run("auth fail", func(t *testing.T) {
		middleware := AuthMiddleware(authFunc(func(ctx context.Context, r *http.Request) (uuid.UUID, error) {
			return uuid.Nil, errors.New("token expired")
		}))

		srv := httptest.NewServer(middleware(handler))
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/test")
		require.NoError(t, err, "should make request to test server")
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err, "should read response body")
		defer resp.Body.Close() // nolint:errcheck

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.JSONEq(t, `{"error": "service_error", "message": "Unauthorized"}`, string(body))
	})
}

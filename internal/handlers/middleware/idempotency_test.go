package middleware

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletledger/internal/handlers/actorctx"
	"github.com/nkiryanov/walletledger/internal/logger"
)

func TestIdempotency(t *testing.T) {
	setup := func(t *testing.T, status int) (*miniredis.Miniredis, http.Handler, *atomic.Int32) {
		mr := miniredis.RunT(t)
		cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = cache.Close() })

		calls := &atomic.Int32{}
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := calls.Add(1)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(status)
			_, _ = fmt.Fprintf(w, `{"call":%d}`, n)
		})

		return mr, Idempotency(cache, time.Minute, logger.NewNoOpLogger())(handler), calls
	}

	actorID := uuid.New()
	do := func(t *testing.T, h http.Handler, key string) *http.Response {
		r := httptest.NewRequest(http.MethodPost, "/api/wallets/x/credit", strings.NewReader("{}"))
		r = r.WithContext(actorctx.New(r.Context(), actorID))
		if key != "" {
			r.Header.Set(IdempotencyKeyHeader, key)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Result()
	}

	body := func(t *testing.T, resp *http.Response) string {
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(b)
	}

	t.Run("without key passes through", func(t *testing.T) {
		_, h, calls := setup(t, http.StatusCreated)

		do(t, h, "")
		do(t, h, "")

		require.EqualValues(t, 2, calls.Load())
	})

	t.Run("repeated key replays response", func(t *testing.T) {
		_, h, calls := setup(t, http.StatusCreated)

		first := do(t, h, "abc")
		second := do(t, h, "abc")

		require.EqualValues(t, 1, calls.Load(), "handler runs once")
		require.Equal(t, http.StatusCreated, second.StatusCode)
		require.Equal(t, body(t, first), body(t, second))
		require.Equal(t, "true", second.Header.Get(ReplayedHeader))
		require.Equal(t, "application/json; charset=utf-8", second.Header.Get("Content-Type"))
	})

	t.Run("in flight duplicate rejected", func(t *testing.T) {
		mr, h, calls := setup(t, http.StatusCreated)
		require.NoError(t, mr.Set(idempotencyPrefix+actorID.String()+":POST:/api/wallets/x/credit:busy", inProgressMarker))

		resp := do(t, h, "busy")

		require.Equal(t, http.StatusConflict, resp.StatusCode)
		require.Zero(t, calls.Load())
	})

	t.Run("server errors are not stored", func(t *testing.T) {
		_, h, calls := setup(t, http.StatusServiceUnavailable)

		do(t, h, "retry-me")
		do(t, h, "retry-me")

		require.EqualValues(t, 2, calls.Load())
	})

	t.Run("panicking handler releases key", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = cache.Close() })

		calls := &atomic.Int32{}
		h := Idempotency(cache, time.Minute, logger.NewNoOpLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				panic("boom")
			}
			w.WriteHeader(http.StatusCreated)
		}))

		require.PanicsWithValue(t, "boom", func() { do(t, h, "abc") })
		require.False(t, mr.Exists(idempotencyPrefix+actorID.String()+":POST:/api/wallets/x/credit:abc"))

		resp := do(t, h, "abc")

		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.EqualValues(t, 2, calls.Load())
	})

	t.Run("redis down", func(t *testing.T) {
		mr, h, calls := setup(t, http.StatusCreated)
		mr.Close()

		resp := do(t, h, "abc")

		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.Zero(t, calls.Load())
	})
}

package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/walletledger/internal/handlers/actorctx"
	"github.com/nkiryanov/walletledger/internal/handlers/render"
	"github.com/nkiryanov/walletledger/internal/logger"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"

	idempotencyPrefix = "idempotency:v1:"
	inProgressMarker  = "__in_progress__"
	redisTimeout      = 2 * time.Second
)

type storedResponse struct {
	Status  int               `json:"status"`
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers"`
}

type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}

func (w *recordingWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Idempotency replays stored responses for repeated Idempotency-Key and rejects a duplicate while the first one is in flight.
// Keys are scoped by actor and route. Requests without the header pass through untouched.
// Server errors are not stored so the client may retry them.
func Idempotency(cache *redis.Client, ttl time.Duration, l logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			actorID, _ := actorctx.FromContext(r.Context())
			cacheKey := idempotencyPrefix + actorID.String() + ":" + r.Method + ":" + r.URL.Path + ":" + key

			ctx, cancel := context.WithTimeout(r.Context(), redisTimeout)
			defer cancel()

			cached, err := cache.Get(ctx, cacheKey).Result()
			switch {
			case err == nil:
				replay(w, cached, l)
				return
			case !errors.Is(err, redis.Nil):
				l.Error("Idempotency lookup failed", "key", key, "error", err)
				render.ServiceError(w, "Idempotency store failure", http.StatusInternalServerError)
				return
			}

			reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
			if err != nil {
				l.Error("Idempotency reservation failed", "key", key, "error", err)
				render.ServiceError(w, "Idempotency store failure", http.StatusInternalServerError)
				return
			}
			if !reserved {
				render.ServiceError(w, "Duplicate request currently processing", http.StatusConflict)
				return
			}

			// A panicking handler must not leave the key reserved forever
			defer func() {
				if p := recover(); p != nil {
					releaseCtx, releaseCancel := context.WithTimeout(context.WithoutCancel(r.Context()), redisTimeout)
					defer releaseCancel()
					if err := cache.Del(releaseCtx, cacheKey).Err(); err != nil {
						l.Error("Failed to release idempotency key", "key", key, "error", err)
					}
					panic(p)
				}
			}()

			rw := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			// Request context may be cancelled by now, the result still has to be saved
			persistCtx, persistCancel := context.WithTimeout(context.WithoutCancel(r.Context()), redisTimeout)
			defer persistCancel()

			if rw.status >= http.StatusInternalServerError {
				cache.Del(persistCtx, cacheKey)
				return
			}

			stored := storedResponse{
				Status:  rw.status,
				Body:    rw.body.Bytes(),
				Headers: map[string]string{"Content-Type": rw.Header().Get("Content-Type")},
			}
			payload, err := json.Marshal(stored)
			if err == nil {
				err = cache.Set(persistCtx, cacheKey, payload, ttl).Err()
			}
			if err != nil {
				l.Error("Failed to persist idempotent response", "key", key, "error", err)
				cache.Del(persistCtx, cacheKey)
			}
		})
	}
}

func replay(w http.ResponseWriter, cached string, l logger.Logger) {
	if cached == inProgressMarker {
		render.ServiceError(w, "Duplicate request currently processing", http.StatusConflict)
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		l.Warn("Failed to decode stored idempotent response", "error", err)
		render.ServiceError(w, "Duplicate request", http.StatusConflict)
		return
	}

	for header, value := range stored.Headers {
		if value != "" {
			w.Header().Set(header, value)
		}
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

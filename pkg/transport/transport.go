// Package transport holds the HTTP plumbing shared by cmd/agent and
// cmd/coordinator: a gorilla/mux router, a small JSON codec, and a
// port-availability pre-check.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// ErrTransport wraps any failed HTTP POST. Callers log it and do not retry
// — the next periodic report carries fresh data instead.
var ErrTransport = errors.New("transport: request failed")

// NewRouter returns a gorilla/mux router with a structured-logging
// middleware attached.
func NewRouter(logger log.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(logger))
	return r
}

func loggingMiddleware(logger log.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			reqID := uuid.NewString()
			w.Header().Set("X-Request-Id", reqID)
			next.ServeHTTP(w, req)
			level.Debug(logger).Log(
				"msg", "handled request",
				"req_id", reqID,
				"method", req.Method,
				"path", req.URL.Path,
				"duration", time.Since(start),
			)
		})
	}
}

// DecodeJSON decodes the request body into v, rejecting unknown fields so a
// stale client can't silently write fields the server doesn't understand.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// PostJSON marshals body as JSON and POSTs it to url, returning
// ErrTransport wrapping the underlying cause on any failure or non-2xx
// status. Used both by the agent's usage-report loop and the coordinator's
// per-VM config push.
func PostJSON(ctx context.Context, client *http.Client, url string, body interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("transport: marshal: %w", ErrTransport)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("transport: build request: %w", ErrTransport)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: post %s: %w: %w", url, err, ErrTransport)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("transport: post %s: status %d: %w", url, resp.StatusCode, ErrTransport)
	}
	return nil
}

// AwaitFreePort blocks until port can be bound or ctx is cancelled, logging
// and retrying every retry interval on collision. It never kills the
// process holding the port; whoever owns it is left alone.
func AwaitFreePort(ctx context.Context, logger log.Logger, port int, retry time.Duration) error {
	for {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			return ln.Close()
		}

		level.Warn(logger).Log("msg", "port already in use, retrying", "port", port, "err", err)

		t := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

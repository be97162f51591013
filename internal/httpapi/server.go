package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer builds the *http.Server for the rate limiter: a plain stdlib
// ServeMux, no framework, with the handler's two routes plus a /metrics
// exposition endpoint.
func NewServer(addr string, handler *Handler, readTimeout, writeTimeout time.Duration) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handler.Healthz)
	mux.HandleFunc("POST /v1/chat/completions", handler.ChatCompletions)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}

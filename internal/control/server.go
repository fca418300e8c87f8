// Package control serves the loopback-bound HTTP endpoint that lets an
// operator poke the producer loop's polling sleep without restarting it.
package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rzd-etran/broker/internal/sleepctl"
)

// StatusFunc reports a liveness snapshot for /healthz; it is supplied by
// the caller so control stays decoupled from the pipeline's internals.
type StatusFunc func() map[string]any

// NewRouter builds the chi router serving /wakeup and /healthz. Any other
// path also responds 200 OK.
func NewRouter(sleeper *sleepctl.Controller, status StatusFunc, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/wakeup", func(w http.ResponseWriter, r *http.Request) {
		sleeper.Wake()
		logger.Info("wakeup received")
		w.Write([]byte("OK"))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status())
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	return r
}

// Serve listens on loopback:port and runs until ctx is cancelled.
func Serve(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:    net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("control endpoint shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

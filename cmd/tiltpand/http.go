package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"tiltpan/internal/tilt"
	"tiltpan/internal/wire"
)

// newHTTPMux wires the HTTP surface:
//
//	GET  /api/state    current snapshot
//	POST /api/request  one owner request envelope, answered like IPC
//	     <wsPath>      state websocket
func newHTTPMux(ws *StateServer, wsPath string, h *ipcHandler, events chan<- tilt.Event) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", func(w http.ResponseWriter, r *http.Request) {
		snap, err := requestSnapshot(r.Context(), events, snapshotTimeout)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	mux.HandleFunc("POST /api/request", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var env wire.Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse(fmt.Errorf("unmarshal envelope: %w", err)))
			return
		}
		resp := h.handle(r.Context(), env)
		status := http.StatusOK
		if resp.Status != wire.StatusOK {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, resp)
	})

	if ws != nil && wsPath != "" {
		mux.Handle(wsPath, ws)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// runHTTPServer serves handler on addr and shuts down gracefully when ctx is
// canceled.
func runHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()
	logger.Info("HTTP server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}

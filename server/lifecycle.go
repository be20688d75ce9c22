package server

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/skillvee/mend/errors"
)

// ShutdownTimeout bounds how long Stop waits for goroutines to exit
const ShutdownTimeout = 10 * time.Second

// setupHTTPRoutes configures all HTTP handlers
func (s *MendServer) setupHTTPRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.corsMiddleware(s.HandleWebSocket))                // Job update stream
	mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))               // Liveness probe
	mux.HandleFunc("/api/status", s.corsMiddleware(s.HandleStatus))           // Dependency health + host metrics
	mux.HandleFunc("/api/jobs/retry", s.corsMiddleware(s.HandleRetryJob))     // Retry/force-retry a failed job (POST)
	mux.HandleFunc("/api/jobs/failed", s.corsMiddleware(s.HandleFailedJobs))  // List failed jobs (GET)
	mux.HandleFunc("/api/jobs/", s.corsMiddleware(s.HandleJob))               // Individual job + error history (GET)

	return mux
}

// corsMiddleware adds CORS headers using the configured allowed origins
func (s *MendServer) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// isPortAvailable checks if a port is available for binding
func isPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}

// findAvailablePort tries the requested port first, then up to 10 ports above it
func findAvailablePort(requestedPort int) (int, error) {
	if isPortAvailable(requestedPort) {
		return requestedPort, nil
	}

	for i := 1; i <= 10; i++ {
		port := requestedPort + i
		if isPortAvailable(port) {
			return port, nil
		}
	}

	return 0, errors.Newf("no available ports found (tried %d-%d)", requestedPort, requestedPort+10)
}

// Start runs the hub, background tickers, and the HTTP listener. Blocks
// until the listener exits.
func (s *MendServer) Start(port int) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run()
	}()

	s.startCleanupTicker()

	actualPort, err := findAvailablePort(port)
	if err != nil {
		return errors.Wrap(err, "failed to find available port")
	}

	if actualPort != port {
		s.logger.Infow("Port in use, using alternative",
			"requested_port", port,
			"actual_port", actualPort,
		)
	}

	mux := s.setupHTTPRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", actualPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Infow("Server ready",
		"url", fmt.Sprintf("http://localhost:%d", actualPort),
		"port", actualPort,
	)

	err = s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server and cleans up resources
func (s *MendServer) Stop() error {
	s.logger.Infow("Initiating server shutdown")

	if s.runner != nil {
		s.runner.Stop()
		s.logger.Infow("Runner stopped")
	}

	// Close client connections before cancelling the context so the pumps
	// exit cleanly
	s.mu.Lock()
	clientsToClose := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clientsToClose = append(clientsToClose, client)
		delete(s.clients, client)
	}
	s.mu.Unlock()

	if len(clientsToClose) > 0 {
		s.logger.Infow("Closing client connections", "count", len(clientsToClose))
		for _, client := range clientsToClose {
			client.conn.Close()
		}
	}

	s.cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Close(); err != nil {
			s.logger.Warnw("HTTP server close failed", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infow("All goroutines stopped cleanly")
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("Goroutine shutdown timed out, forcing exit",
			"timeout", ShutdownTimeout,
		)
		return errors.Wrapf(errors.ErrTimeout, "goroutines still running after %s", ShutdownTimeout)
	}

	s.logger.Infow("Server shutdown complete",
		"broadcast_drops", s.broadcastDrops.Load(),
	)

	return nil
}

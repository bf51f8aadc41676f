package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
)

// Shared plumbing for the ops and metrics servers: both get the same
// timeouts, keep-alive listener setup and shutdown sequence.

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}
}

func listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := &net.ListenConfig{
		KeepAliveConfig: net.KeepAliveConfig{
			Enable: true,
		},
	}

	return lc.Listen(ctx, "tcp", addr)
}

func shutdownServer(
	ctx context.Context,
	logger *slog.Logger,
	name string,
	inShutdown *atomic.Bool,
	server *http.Server,
) error {
	if !inShutdown.CompareAndSwap(false, true) {
		logger.ErrorContext(ctx, "server is already shutting down, skipping shutdown", "server", name)

		return nil
	}

	defer func() {
		logger.InfoContext(ctx, "server shut downed", "server", name)
	}()

	logger.InfoContext(ctx, "shutting down server", "server", name)

	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		logger.ErrorContext(ctx, "error shutting down server", "server", name, "error", err)

		return fmt.Errorf("%s shutdown: %w", name, err)
	}

	logger.InfoContext(ctx, "server closed properly", "server", name)

	return nil
}

package server

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ListenAndServe serves on the configured address until SIGINT or SIGTERM,
// then drains in-flight requests for at most the configured shutdown timeout.
func (s *Server) ListenAndServe(addr string) error {
	if addr == "" {
		addr = s.params.Addr
	}
	s.logger.Info("listening", zap.String("addr", addr))
	return Serve(s.HTTPServer(addr), s.params.ShutdownTimeout, s.logger, nil, nil)
}

// Serve runs server until it fails or a shutdown signal arrives.
//
// Arguments:
//   - server: The HTTP server to run.
//   - shutdownTimeout: Upper bound on the graceful drain.
//   - logger: Receives the shutdown notice.
//   - listener: Serves on this listener when set, otherwise on server.Addr.
//   - signalCh: Replaces SIGINT/SIGTERM delivery when set. Closing it waits for the server to exit.
//
// Returns:
//   - error: The serve or shutdown error. A clean shutdown returns nil.
func Serve(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "graceful shutdown failed")
		}
		return <-errCh
	}
}

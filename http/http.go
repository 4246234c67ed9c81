package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// The time given to in-flight requests when the servers stop.
const ShutdownTimeout = 10 * time.Second

// ListenAndServe runs the given servers until ctx is canceled.
func ListenAndServe(ctx context.Context, servers ...*http.Server) {
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				logs.Warn(errors.Newf("shutting down the server failed").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}
	}()

	var wg sync.WaitGroup

	for _, s := range servers {
		wg.Add(1)

		go func(s *http.Server) {
			defer wg.Done()

			logs.WithTag("addr", s.Addr).Info("starting server")

			switch err := s.ListenAndServe(); err {
			case nil, http.ErrServerClosed, context.Canceled:
				logs.WithTag("addr", s.Addr).Info("stopping server")

			default:
				logs.Warn(errors.Newf("server stopped").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}(s)
	}

	wg.Wait()
}

// MetricsPathFormatter returns empty string on HTTP 301, 400, 404 or 405
// statusCode. Scene API paths are reduced to their route template so that
// scene ids don't end up in metric labels.
func MetricsPathFormatter(statusCode int, path string) string {
	if statusCode == http.StatusMovedPermanently ||
		statusCode == http.StatusBadRequest ||
		statusCode == http.StatusNotFound ||
		statusCode == http.StatusMethodNotAllowed {
		return ""
	}

	return routeTemplate(path)
}

func routeTemplate(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] != "scenes" {
		return path
	}

	parts[1] = "{id}"
	if len(parts) == 4 {
		switch parts[2] {
		case "obstacles":
			parts[3] = "{obstacle}"
		case "targets":
			parts[3] = "{target}"
		}
	}
	return "/" + strings.Join(parts, "/")
}

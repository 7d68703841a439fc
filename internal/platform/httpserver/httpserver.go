package httpserver

import (
	"net/http"
	"time"

	"regdesk/internal/platform/config"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
	// writeGrace lets a handler cut off by the request timeout still write
	// its timeout response before the connection is closed.
	writeGrace = 5 * time.Second
)

// New builds the HTTP server for cfg. The read and write deadlines follow the
// per-request timeout applied by the router.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout + writeGrace,
		IdleTimeout:       idleTimeout,
	}
}

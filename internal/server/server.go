// Package server exposes the client's admin HTTP surface: health and
// Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/stompctl/internal/observability"
	"github.com/danmuck/stompctl/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Status is the read-only view of a running client.
type Status interface {
	State() session.ConnectionState
	Connected() bool
	ProtocolVersion() string
}

type Admin struct {
	Name     string
	Addr     string
	Appeared time.Time

	status Status
	router *gin.Engine
	srv    *http.Server
}

// NewAdmin builds the router; corsOrigins may be empty.
func NewAdmin(name, addr string, status Status, corsOrigins []string) *Admin {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminMiddleware(log.Logger, name))
	if origins := normalizeOrigins(corsOrigins); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{
		Name:     name,
		Addr:     addr,
		Appeared: time.Now(),
		status:   status,
		router:   r,
	}
	a.registerRoutes()
	return a
}

func (a *Admin) HTTPRouter() *gin.Engine {
	return a.router
}

// Serve listens on Addr until ctx is cancelled.
func (a *Admin) Serve(ctx context.Context) error {
	a.srv = &http.Server{
		Addr:              a.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.Addr).Msg("server.Admin listening")
		errCh <- a.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := a.srv.Shutdown(shutdownCtx)
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return err
	}
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		if o == "" {
			continue
		}
		out = append(out, o)
	}
	return out
}

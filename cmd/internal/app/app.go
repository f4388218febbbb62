// Package app wires the SecureChat invite server: config, logging, storage,
// HTTP routes, the realtime feed and the expiry sweeper.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"securechat/cmd/internal/invite"
	inviteapi "securechat/cmd/internal/invite/api"
	"securechat/cmd/internal/kv"
	"securechat/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App owns the server runtime and the resources it must close on shutdown.
type App struct {
	cfg Config
	log Logger

	store  kv.Store
	dbPool *pgxpool.Pool

	registry *prometheus.Registry
	invites  *invite.Service
	sweeper  *invite.Sweeper
	ws       *realtime.Gateway
	api      *inviteapi.Handler
}

// New constructs a fully wired App from config and logger.
func New(ctx context.Context, cfg Config, inviteCfg invite.Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg)
	}

	st, pool, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: log, store: st, dbPool: pool}
	if err := a.wire(inviteCfg); err != nil {
		_ = a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(inviteCfg invite.Config) error {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics, err := invite.NewMetrics(a.registry)
	if err != nil {
		return err
	}

	hub := realtime.NewHub(a.log)
	if err := hub.RegisterMetrics(a.registry); err != nil {
		return err
	}
	a.ws = realtime.NewGateway(a.log, hub)

	opts := append(inviteCfg.Options(),
		invite.WithLogger(a.log),
		invite.WithMetrics(metrics),
		invite.WithNotifier(hub),
	)
	a.invites, err = invite.NewService(a.store, opts...)
	if err != nil {
		return err
	}

	a.sweeper, err = invite.NewSweeper(a.invites, inviteCfg.SweepInterval, a.log)
	if err != nil {
		return err
	}

	a.api, err = inviteapi.NewHandler(a.log, a.invites)
	return err
}

// Handler returns the full HTTP handler chain.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.registry, a.ws, a.api)

	var h http.Handler = mux
	h = WithSessionUser(h)
	h = WithSecurityHeaders(h)
	if len(a.cfg.CORSAllowedOrigins) > 0 {
		h = WithCORS(h, a.cfg, a.log)
	}
	return WithRequestLogging(h, a.log)
}

// Run starts the HTTP server and the sweeper, and blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	if err := a.sweeper.Start(ctx); err != nil {
		return err
	}
	defer a.sweeper.Stop()

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"storage", a.cfg.Storage,
		"api", base,
		"ws", wsBaseURL(base)+"/ws",
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		_ = a.close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}
	if err := a.close(); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

// close releases the store before the pool it may be using.
func (a *App) close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
	return err
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
// Wildcard binds are reported as loopback.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}

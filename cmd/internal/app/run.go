package app

import (
	"context"
	"errors"
	"io/fs"
	"os/signal"
	"syscall"

	"securechat/cmd/internal/invite"

	"github.com/joho/godotenv"
)

// Run is the CLI entrypoint used by cmd/securechat.
// It returns an error instead of calling os.Exit so defers still run.
func Run() error {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg := LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := NewLogger(cfg)

	inviteCfg, err := invite.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := SetupTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error("otel.shutdown.fail", "err", err)
		}
	}()

	a, err := New(ctx, cfg, inviteCfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"todo-api/cache"
	"todo-api/config"
	"todo-api/metrics"
	"todo-api/store"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "todo-api",
		Short: "A multi-user todo list over HTTP",
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the todo API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
)

func init() {
	serveCmd.Flags().StringVarP(&cfgFile, "config", "c", "configs/config.yml", "config file; defaults apply when it does not exist")
	rootCmd.AddCommand(serveCmd)
}

func newLogger(cfg config.Log) (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, store.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetimeDuration(),
	})
	if err != nil {
		return err
	}
	defer db.Close()
	log.WithField("driver", cfg.Database.Driver).Info("database ready, tables created")

	var todoCache cache.TodoCache = cache.Nop{}
	if cfg.Cache.RedisAddr != "" {
		rc, err := cache.NewRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.TTLDuration(), log)
		if err != nil {
			return err
		}
		todoCache = rc
		log.WithField("addr", cfg.Cache.RedisAddr).Info("redis cache enabled")
	}
	defer todoCache.Close()

	srv := NewServer(ServerOptions{
		Store:   db,
		Cache:   todoCache,
		Metrics: metrics.New(db.Stats),
		Log:     log,
		Timeout: cfg.RequestTimeoutDuration(),
	})

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("server listening on %s", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeoutDuration())
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

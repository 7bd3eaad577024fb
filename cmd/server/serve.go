package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/iliyamo/reservation-sync/internal/catalog"
	"github.com/iliyamo/reservation-sync/internal/config"
	"github.com/iliyamo/reservation-sync/internal/database"
	"github.com/iliyamo/reservation-sync/internal/handler"
	"github.com/iliyamo/reservation-sync/internal/notify"
	"github.com/iliyamo/reservation-sync/internal/queue"
	"github.com/iliyamo/reservation-sync/internal/repository"
	"github.com/iliyamo/reservation-sync/internal/router"
	"github.com/iliyamo/reservation-sync/internal/syncer"
)

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the per-tenant synchronizers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := newLogger(cfg.LogLevel)
			slog.SetDefault(logger)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			db, err := openDB(cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			if migrate {
				if err := database.EnsureSchema(ctx, db, cfg.DBDriver); err != nil {
					return err
				}
			}

			rdb := config.NewRedisClient()
			if rdb == nil {
				logger.Warn("redis unavailable; catalog cache and rate limiting disabled")
			} else {
				defer rdb.Close()
			}

			feedCfg := config.LoadFeedConfig()
			feed, publisher, err := newFeed(feedCfg, logger)
			if err != nil {
				return err
			}
			notifier, err := newNotifier(config.LoadNotifyConfig(), logger)
			if err != nil {
				return err
			}

			reservations := repository.NewReservationRepo(db)
			services := catalog.New(repository.NewServiceRepo(db), rdb, config.LoadCacheConfig(), logger)
			mgr := syncer.NewManager(ctx, syncer.Options{
				Source:   reservations,
				Catalog:  services,
				Feed:     feed,
				Notifier: notifier,
				Logger:   logger,
				Config:   config.LoadSyncConfig(),
			})
			defer mgr.Close()

			e := echo.New()
			e.HideBanner = true
			router.RegisterRoutes(e, db, mgr)
			router.RegisterReservations(e,
				handler.NewReservationHandler(mgr, reservations, publisher, logger),
				cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)

			errCh := make(chan error, 1)
			go func() {
				addr := ":" + cfg.Port
				logger.Info("listening", "addr", addr, "env", cfg.Env, "db", cfg.DBDriver, "feed", feedCfg.Driver)
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return err
				}
			}
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			return e.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "create tables on startup")
	return cmd
}

func openDB(cfg config.Config) (*sql.DB, error) {
	if cfg.DBDriver == database.DriverSQLite {
		return database.OpenSQLite(cfg.DBPath)
	}
	return database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// newFeed returns the change feed and a publisher on the same transport.
func newFeed(cfg config.FeedConfig, logger *slog.Logger) (queue.Feed, queue.Publisher, error) {
	switch cfg.Driver {
	case config.FeedAMQP:
		return queue.NewAMQPFeed(cfg.AMQPURL, cfg.Exchange, logger),
			queue.NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange, logger), nil
	case config.FeedMQTT:
		f := queue.NewMQTTFeed(cfg.MQTTBroker, cfg.TopicPrefix, logger)
		f.Username, f.Password = cfg.MQTTUser, cfg.MQTTPassword
		return f, queue.NewMQTTPublisher(f), nil
	case config.FeedNone:
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported FEED_DRIVER %q", cfg.Driver)
	}
}

func newNotifier(cfg config.NotifyConfig, logger *slog.Logger) (notify.Notifier, error) {
	n := notify.Multi{notify.Log{Logger: logger}}
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			return nil, err
		}
		n = append(n, tg)
	}
	return n, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/avigest/granja/internal/config"
	"github.com/avigest/granja/internal/domain/articles"
	"github.com/avigest/granja/internal/domain/flocks"
	"github.com/avigest/granja/internal/domain/ledger"
	"github.com/avigest/granja/internal/infra/db"
	httpx "github.com/avigest/granja/internal/infra/http"
	"github.com/avigest/granja/internal/infra/logger"
	"github.com/avigest/granja/internal/infra/notify"
	"github.com/avigest/granja/internal/scheduler"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/subosito/gotenv"
)

func runMigrations(dsn string, log *slog.Logger) error {
	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func main() {
	rebuild := flag.Bool("rebuild", false, "rebuild the kardex from historical records and exit")
	flag.Parse()

	_ = gotenv.Load()

	cfg, err := config.Load("config/example.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.Postgres.DSN, log); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.AdminChatID, log)
	if err != nil {
		log.Error("telegram init failed", "err", err)
		return
	}
	if tg == nil {
		log.Info("telegram alerts disabled")
	}

	if *rebuild {
		// Exclusive-access maintenance: run with live mutations stopped.
		engine := ledger.NewEngine(pool, log, tg)
		reports, err := engine.RebuildAll(ctx)
		if err != nil {
			log.Error("kardex rebuild failed", "err", err)
			return
		}
		for _, r := range reports {
			if !r.Drift.IsZero() {
				log.Warn("drift corrected", "article_id", r.ArticleID, "drift", r.Drift.String())
			}
		}
		log.Info("kardex rebuild complete", "articles", len(reports))
		return
	}

	sched := scheduler.New(articles.NewRepo(pool), flocks.NewRepo(pool), tg, log, cfg.Alerts.VaccinationWindowDays)
	if err := sched.Start(cfg.Alerts.Schedule); err != nil {
		log.Error("scheduler start failed", "err", err)
		return
	}
	defer sched.Stop()
	log.Info("alert sweep scheduled", "spec", cfg.Alerts.Schedule)

	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled, pool)
	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}

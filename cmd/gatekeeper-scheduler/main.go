// Gatekeeper Scheduler — публикует синтетические события change.pushed
// по cron-расписаниям из gating-таблицы.
//
// При нескольких репликах лидер выбирается через pg_try_advisory_lock:
// тикает только владелец блокировки.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Gatekeeper/internal/gating"
	"github.com/shaiso/Gatekeeper/internal/mq"
	"github.com/shaiso/Gatekeeper/internal/repo"
	"github.com/shaiso/Gatekeeper/internal/scheduler"
	"github.com/shaiso/Gatekeeper/internal/telemetry"
)

const schedLockKey int64 = 424242

func main() {
	_ = godotenv.Load()

	logger := telemetry.SetupLogger()
	logger.Info("starting gatekeeper-scheduler")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Gating-таблица — источник расписаний
	tablePath := os.Getenv("GATING_TABLE")
	if tablePath == "" {
		tablePath = "gating.yaml"
	}
	table, err := gating.Load(tablePath)
	if err != nil {
		logger.Error("failed to load gating table", "path", tablePath, "error", err)
		os.Exit(1)
	}
	if len(table.Schedules) == 0 {
		logger.Warn("gating table has no schedules, nothing to do", "path", tablePath)
	}

	// RabbitMQ
	mqConn, err := mq.NewConnection(mq.DefaultURL(), logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		Schedules: table.Schedules,
		Publisher: mq.NewPublisher(mqConn, logger),
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	// DB pool для leader election. Без базы предполагаем единственную
	// реплику и тикаем безусловно.
	var pool *pgxpool.Pool
	if pool, err = repo.NewPool(ctx); err != nil {
		logger.Warn("database not available, skipping leader election", "error", err)
		pool = nil
	} else {
		defer pool.Close()
		logger.Info("database connected")
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// scheduler loop
	go func() {
		tk := time.NewTicker(1 * time.Second)
		defer tk.Stop()

		var hasLock bool
		defer func() {
			if hasLock && pool != nil {
				_, _ = pool.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
			}
		}()

		for {
			select {
			case t := <-tk.C:
				// пытаемся стать лидером (или подтвердить лидерство)
				if pool != nil && !hasLock {
					var ok bool
					if err := pool.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&ok); err != nil {
						logger.Warn("leader lock attempt failed", "error", err)
						continue
					}
					hasLock = ok
				}

				if pool != nil && !hasLock {
					// не лидер — пропускаем тик
					continue
				}

				if fired := sched.Tick(ctx, t); fired > 0 {
					logger.Info("schedules fired", "count", fired)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	// serve
	port := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("gatekeeper-scheduler stopped")
}

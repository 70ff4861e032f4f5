// Gatekeeper Orchestrator — управляет жизненным циклом runs.
//
// Orchestrator:
//   - Получает события change.pushed из RabbitMQ
//   - Вытесняет активные runs того же change_id
//   - Классифицирует изменённые файлы в флаги
//   - Запускает dispatch jobs по gating-таблице
//   - Финализирует runs и записывает решения
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Gatekeeper/internal/classify"
	"github.com/shaiso/Gatekeeper/internal/diff"
	"github.com/shaiso/Gatekeeper/internal/dispatch"
	"github.com/shaiso/Gatekeeper/internal/gating"
	"github.com/shaiso/Gatekeeper/internal/mq"
	"github.com/shaiso/Gatekeeper/internal/orchestrator"
	"github.com/shaiso/Gatekeeper/internal/registry"
	"github.com/shaiso/Gatekeeper/internal/repo"
	"github.com/shaiso/Gatekeeper/internal/runner"
	"github.com/shaiso/Gatekeeper/internal/secrets"
	"github.com/shaiso/Gatekeeper/internal/telemetry"
)

const diffCacheSize = 256

func main() {
	// .env для локальной разработки; в production переменные задаёт среда
	_ = godotenv.Load()

	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting gatekeeper-orchestrator")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Gating-таблица
	tablePath := os.Getenv("GATING_TABLE")
	if tablePath == "" {
		tablePath = "gating.yaml"
	}
	table, err := gating.Load(tablePath)
	if err != nil {
		logger.Error("failed to load gating table", "path", tablePath, "error", err)
		os.Exit(1)
	}
	logger.Info("gating table loaded", "path", tablePath, "jobs", len(table.Jobs), "flags", len(table.Flags))

	// DB pool: registry авторитетен в памяти, Postgres — зеркало для API.
	// Без базы orchestrator работает, но runs не видны снаружи.
	regOpts := []registry.Option{}
	var decisions orchestrator.DecisionPersister
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Warn("database not available, running without persistence", "error", err)
	} else {
		defer pool.Close()
		logger.Info("database connected")

		runRepo := repo.NewRunRepo(pool)
		regOpts = append(regOpts, registry.WithPersister(runRepo))
		decisions = repo.NewDecisionRepo(pool)

		// Registry живёт в памяти: активные runs прошлого инстанса
		// в зеркале уже никем не управляются, финализируем их FAILED
		if stale, err := runRepo.ListActive(ctx, 1000); err != nil {
			logger.Warn("failed to list stale runs", "error", err)
		} else if len(stale) > 0 {
			logger.Warn("failing stale active runs from previous instance", "count", len(stale))
			for i := range stale {
				stale[i].MarkFailed("orchestrator restarted before run finished")
				if err := runRepo.UpdateRun(ctx, &stale[i]); err != nil {
					logger.Warn("failed to update stale run", "run_id", stale[i].ID, "error", err)
				}
			}
		}
	}

	// RabbitMQ
	var publisher *mq.Publisher
	var mqConn *mq.Connection
	mqConn, err = mq.NewConnection(mq.DefaultURL(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		// Создаём топологию
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Diff-сервис (опционально)
	var diffs diff.Service
	if diffURL := os.Getenv("DIFF_URL"); diffURL != "" {
		client := diff.NewClient(diffURL, os.Getenv("DIFF_TOKEN"))
		diffs, err = diff.NewCached(client, diffCacheSize)
		if err != nil {
			logger.Error("failed to init diff cache", "error", err)
			os.Exit(1)
		}
		logger.Info("diff service configured", "url", diffURL)
	}

	// Runner поверх RabbitMQ
	jobRunner := runner.NewMQRunner(publisher, mqConn, logger)
	jobRunner.Start(ctx)
	defer jobRunner.Stop()

	// Создаём orchestrator
	orch := orchestrator.New(orchestrator.Config{
		Registry:   registry.New(logger, regOpts...),
		Dispatcher: dispatch.NewDispatcher(table, jobRunner, secrets.FromEnv(""), logger),
		Classifier: classify.New(table),
		Diffs:      diffs,
		Decisions:  decisions,
		Conn:       mqConn,
		Logger:     logger,
	})

	// Запускаем orchestrator
	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8083"
	if v := os.Getenv("ORCH_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем orchestrator
	orch.Stop()
	logger.Info("gatekeeper-orchestrator stopped")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/denisok6893-rgb/property-ranking/internal/config"
	"github.com/denisok6893-rgb/property-ranking/internal/domain"
	httpapi "github.com/denisok6893-rgb/property-ranking/internal/http"
	"github.com/denisok6893-rgb/property-ranking/internal/ingest"
	"github.com/denisok6893-rgb/property-ranking/internal/logging"
	"github.com/denisok6893-rgb/property-ranking/internal/matching"
	"github.com/denisok6893-rgb/property-ranking/internal/metrics"
	"github.com/denisok6893-rgb/property-ranking/internal/optimizer"
	"github.com/denisok6893-rgb/property-ranking/internal/ranking"
	"github.com/denisok6893-rgb/property-ranking/internal/retrain"
	"github.com/denisok6893-rgb/property-ranking/internal/storage"
)

const (
	shutdownTimeout = 15 * time.Second
	keepSnapshots   = 20
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal().Err(err).Msg("server error")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if dir := filepath.Dir(cfg.Data.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	store, err := storage.OpenSQLite(cfg.Data.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	seedListings(ctx, store, cfg.Data.ListingsPath)

	weights := cfg.Scoring
	if cfg.Data.WeightsPath != "" {
		w, err := matching.LoadWeightsFromFile(cfg.Data.WeightsPath)
		if err != nil {
			logging.Warn().Err(err).Msg("keeping configured scoring weights")
		} else {
			weights = w
		}
	}

	opt, err := optimizer.New(
		optimizer.WithWeights(weights),
		optimizer.WithLearningRate(cfg.Optimizer.LearningRate),
		optimizer.WithMinSamples(cfg.Optimizer.MinSamples),
	)
	if err != nil {
		return err
	}
	weights = restoreModel(ctx, store, opt, weights)

	engine, err := matching.NewEngine(weights)
	if err != nil {
		return err
	}
	metrics.SetWeights(weights)

	svc := ranking.NewService(engine, cfg.Diversity)
	guard := optimizer.NewGuard(opt)

	job := retrain.NewJob(guard, svc, store)
	if cfg.Optimizer.RetrainSchedule != "" {
		if err := job.Start(cfg.Optimizer.RetrainSchedule); err != nil {
			return err
		}
	}

	var consumer *ingest.Consumer
	if cfg.Ingest.Enabled {
		consumer, err = ingest.Dial(ingest.Config{
			URL:         cfg.Ingest.AMQPURL,
			Queue:       cfg.Ingest.Queue,
			Prefetch:    cfg.Ingest.Prefetch,
			ConsumerTag: "property-ranking",
		}, ingest.NewHandler(ingest.NewGuardSink(guard)))
		if err != nil {
			return err
		}
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logging.Error().Err(err).Msg("outcome consumer stopped")
			}
		}()
	}

	srv := httpapi.NewServer(svc, guard, &httpapi.SQLiteListingsRepo{Store: store}, job)
	httpSrv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("address", cfg.Server.Address).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logging.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := httpSrv.Shutdown(shutdownCtx)
	job.Stop(shutdownCtx)
	if consumer != nil {
		shutdownErr = errors.Join(shutdownErr, consumer.Close())
	}
	saveModel(shutdownCtx, store, guard)
	if n, err := store.PruneModelSnapshots(shutdownCtx, keepSnapshots); err != nil {
		logging.Warn().Err(err).Msg("prune model snapshots")
	} else if n > 0 {
		logging.Info().Int64("pruned", n).Msg("pruned model snapshots")
	}
	return shutdownErr
}

// seedListings loads the JSON seed file into an empty database.
func seedListings(ctx context.Context, store *storage.SQLiteStore, path string) {
	n, err := store.CountListings(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("count listings")
		return
	}
	if n > 0 || path == "" {
		return
	}
	items, err := storage.LoadListingsFromFile(path)
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("skip listing seed")
		return
	}
	if err := store.UpsertMany(ctx, items); err != nil {
		logging.Warn().Err(err).Msg("seed listings")
		return
	}
	logging.Info().Int("count", len(items)).Str("path", path).Msg("seeded listings")
}

// saveModel snapshots the optimizer so samples gathered since the last
// training run survive a restart.
func saveModel(ctx context.Context, store *storage.SQLiteStore, guard *optimizer.Guard) {
	var state domain.ModelState
	guard.With(func(o *optimizer.Optimizer) { state = o.ModelState() })
	if len(state.TrainingData) == 0 {
		return
	}
	snap, err := store.SaveModelState(ctx, state)
	if err != nil {
		logging.Warn().Err(err).Msg("save model snapshot")
		return
	}
	logging.Info().Int64("version", snap.Version).Int("sample_count", snap.SampleCount).Msg("saved model snapshot")
}

// restoreModel loads the latest snapshot into opt and returns the weights to
// score with. Missing or corrupt snapshots keep the fallback.
func restoreModel(ctx context.Context, store *storage.SQLiteStore, opt *optimizer.Optimizer, fallback domain.WeightConfig) domain.WeightConfig {
	state, snap, err := store.LatestModelState(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fallback
	case err != nil:
		logging.Warn().Err(err).Msg("ignoring model snapshot")
		return fallback
	}
	if err := opt.LoadModelState(state); err != nil {
		logging.Warn().Err(err).Int64("version", snap.Version).Msg("ignoring model snapshot")
		return fallback
	}
	metrics.SetTrainingSamples(opt.SampleCount())
	logging.Info().
		Int64("version", snap.Version).
		Int("sample_count", snap.SampleCount).
		Float64("accuracy", snap.Accuracy).
		Msg("restored model snapshot")
	return state.Weights
}

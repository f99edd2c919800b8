package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/terralens/forestmap/internal/analysis"
	"github.com/terralens/forestmap/internal/provider"
	"github.com/terralens/forestmap/internal/storage"
	"github.com/terralens/forestmap/internal/store"
)

// appEnv holds the initialized clients and pipeline shared by the
// analyze/serve/runs commands.
type appEnv struct {
	Store    *store.SQLiteStore
	Objects  *storage.Client
	Pipeline *analysis.Pipeline
}

// Close releases resources held by the environment.
func (ae *appEnv) Close() {
	if ae.Store != nil {
		_ = ae.Store.Close()
	}
}

// initApp sets up object storage, the provider client, the run-history
// store, and the analysis pipeline. Callers should defer env.Close().
func initApp(ctx context.Context) (*appEnv, error) {
	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, eris.Wrap(err, "init object storage")
	}

	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open run store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate run store")
	}

	client := provider.New(provider.Config{
		BaseURL:       cfg.Provider.BaseURL,
		Token:         cfg.Provider.Token,
		Timeout:       time.Duration(cfg.Provider.TimeoutSecs) * time.Second,
		RatePerSec:    cfg.Provider.RatePerSec,
		RateBurst:     cfg.Provider.RateBurst,
		MaskCacheSize: cfg.Provider.MaskCacheSize,
	})
	geoms := provider.NewGeometryCache(cfg.Provider.GeometryCacheSize)

	return &appEnv{
		Store:    st,
		Objects:  objects,
		Pipeline: analysis.New(client, geoms, objects, cfg.Analysis),
	}, nil
}

// executeRun records and executes one pipeline run against a descriptor
// key. Empty dates use the configured imagery window.
func executeRun(ctx context.Context, env *appEnv, descriptorKey, startDate, endDate string) (*store.Run, *analysis.Outcome, error) {
	run, err := env.Store.CreateRun(ctx, descriptorKey)
	if err != nil {
		return nil, nil, err
	}
	if err := env.Store.UpdateRunStatus(ctx, run.ID, store.RunStatusRunning); err != nil {
		return nil, nil, err
	}

	outcome, err := env.Pipeline.RunWindow(ctx, descriptorKey, startDate, endDate)
	if err != nil {
		_ = env.Store.FailRun(ctx, run.ID, err.Error())
		return run, nil, err
	}

	result := &store.RunResult{
		ImageDate: outcome.ImageDate,
		MapKey:    outcome.MapKey,
		StatsKey:  outcome.StatsKey,
		Report:    outcome.Report,
	}
	if err := env.Store.CompleteRun(ctx, run.ID, result); err != nil {
		return run, outcome, err
	}
	return run, outcome, nil
}

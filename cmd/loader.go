package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/lookalike/internal/config"
	"github.com/kozaktomas/lookalike/internal/index"
	"github.com/kozaktomas/lookalike/internal/match"
	"github.com/kozaktomas/lookalike/internal/metadata"
	"github.com/kozaktomas/lookalike/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// lookupData is everything a lookup needs once loaded.
type lookupData struct {
	index    *index.Index
	store    *metadata.Store
	pipeline *match.Pipeline
}

// openIndex resolves the index location and opens (but does not load) the index.
func openIndex(ctx context.Context, cfg *config.Config, fetcher *storage.Fetcher, logger *zap.Logger) (*index.Index, error) {
	metric, err := index.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}
	backend, err := index.ParseBackend(cfg.Index.Backend)
	if err != nil {
		return nil, err
	}

	path := cfg.Index.Path
	if backend != index.BackendPostgres {
		path, err = fetcher.Resolve(ctx, path)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", index.ErrIndexFileNotFound, err)
		}
		if err != nil {
			return nil, fmt.Errorf("resolving index path: %w", err)
		}
	}

	return index.Open(path, metric, cfg.Index.Dim,
		index.WithBackend(backend),
		index.WithTable(cfg.Index.Table),
		index.WithEfSearch(cfg.Index.EfSearch),
		index.WithParallelScan(cfg.Index.ParallelScan),
		index.WithLogger(logger),
	)
}

// metadataSource resolves where metadata is read from.
func metadataSource(ctx context.Context, cfg *config.Config, fetcher *storage.Fetcher) (metadata.Source, error) {
	src := metadata.Source{
		Path:   cfg.Metadata.Path,
		Driver: cfg.Metadata.Driver,
		DSN:    cfg.Metadata.DSN,
		Table:  cfg.Metadata.Table,
	}
	if src.Driver != "" {
		return src, nil
	}
	path, err := fetcher.Resolve(ctx, src.Path)
	if errors.Is(err, storage.ErrNotFound) {
		return src, fmt.Errorf("%w: %w", metadata.ErrFileNotFound, err)
	}
	if err != nil {
		return src, fmt.Errorf("resolving metadata path: %w", err)
	}
	src.Path = path
	return src, nil
}

// loadLookupData loads the index and metadata concurrently, cross-checks them
// and builds the match pipeline. Any failure is fatal for the caller.
func loadLookupData(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*lookupData, error) {
	fetcher, err := storage.NewFetcher(storage.Options{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Region:    cfg.Storage.Region,
		CacheDir:  cfg.Storage.CacheDir,
	}, logger)
	if err != nil {
		return nil, err
	}

	idx, err := openIndex(ctx, cfg, fetcher, logger)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	src, err := metadataSource(ctx, cfg, fetcher)
	if err != nil {
		return nil, err
	}

	var store *metadata.Store
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := idx.Load(gctx); err != nil {
			return fmt.Errorf("loading index: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s, err := metadata.Load(gctx, src)
		if err != nil {
			return fmt.Errorf("loading metadata: %w", err)
		}
		store = s
		logger.Info("metadata loaded", zap.Int("records", s.Len()))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if cfg.Index.SkipCrossCheck {
		logger.Warn("index/metadata cross-check skipped")
	} else {
		report, err := metadata.CrossCheck(idx.Len(), store)
		if err != nil {
			logger.Error("index and metadata disagree",
				zap.Uint64("missing", report.Missing),
				zap.Any("missing_sample", report.MissingSample),
			)
			return nil, err
		}
		if report.Extra > 0 {
			logger.Warn("metadata has records without vectors", zap.Uint64("extra", report.Extra))
		}
	}

	return &lookupData{
		index:    idx,
		store:    store,
		pipeline: match.NewPipeline(idx, store, match.WithLogger(logger)),
	}, nil
}

// Package app wires together configuration, logging, metrics and the index
// store into a single Deps struct that commands receive at runtime.
package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/nasa-gibs/oetime/internal/best"
	"github.com/nasa-gibs/oetime/internal/config"
	"github.com/nasa-gibs/oetime/internal/layerconfig"
	"github.com/nasa-gibs/oetime/internal/logging"
	"github.com/nasa-gibs/oetime/internal/metrics"
	"github.com/nasa-gibs/oetime/internal/scrape"
	"github.com/nasa-gibs/oetime/internal/store"
	"github.com/nasa-gibs/oetime/internal/timeindex"
)

// Deps holds all runtime dependencies injected into command Run functions.
// Store fields are nil until OpenStore is called; offline commands never
// open one.
type Deps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	Backend store.Backend
	Layers  *store.Layers
}

// New builds a Deps from resolved config.
func New(cfg *config.Config) (*Deps, error) {
	level := cfg.LogLevel
	switch {
	case cfg.Debug:
		level = "debug"
	case cfg.Quiet:
		level = "error"
	}
	log, err := logging.New(logging.Config{Level: level, Format: cfg.LogFormat, Output: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	return &Deps{Config: cfg, Logger: log, Metrics: metrics.New()}, nil
}

// OpenStore connects to the configured backend. Connection failures are
// fatal for the invocation.
func (d *Deps) OpenStore(ctx context.Context) error {
	if d.Backend != nil {
		return nil
	}
	if err := d.Config.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, d.Config.Timeout)
	defer cancel()

	b, err := store.Open(ctx, store.Options{
		Kind:          d.Config.Backend,
		RedisAddr:     d.Config.RedisAddr,
		RedisPassword: d.Config.RedisPassword,
		RedisDB:       d.Config.RedisDB,
		RedisCluster:  d.Config.RedisCluster,
		DBPath:        d.Config.DBPath,
		Timeout:       d.Config.Timeout,
	})
	if err != nil {
		return err
	}
	d.UseBackend(b)
	d.Logger.Debug("store opened", zap.String("backend", b.Name()))
	return nil
}

// UseBackend installs an already open backend.
func (d *Deps) UseBackend(b store.Backend) {
	d.Backend = b
	d.Layers = store.NewLayers(b)
}

// Periods returns the period recompute service.
func (d *Deps) Periods() *timeindex.Service {
	return timeindex.New(d.Layers, d.Logger.Named("periods"))
}

// Resolver returns the best-layer resolver with the configured order.
func (d *Deps) Resolver() (*best.Resolver, error) {
	order, err := best.ParseOrder(d.Config.BestOrder)
	if err != nil {
		return nil, err
	}
	return best.New(d.Layers, order, d.Logger.Named("best")), nil
}

// Pipeline returns the ingestion pipeline.
func (d *Deps) Pipeline() (*scrape.Pipeline, error) {
	r, err := d.Resolver()
	if err != nil {
		return nil, err
	}
	return scrape.New(d.Layers, d.Periods(), r, d.Logger.Named("scrape"), d.Metrics), nil
}

// Loader returns the layer configuration loader.
func (d *Deps) Loader() (*layerconfig.Loader, error) {
	r, err := d.Resolver()
	if err != nil {
		return nil, err
	}
	return layerconfig.NewLoader(d.Layers, d.Periods(), r, d.Logger.Named("load"), d.Metrics), nil
}

// Close writes the metrics file, flushes the logger and closes the store.
func (d *Deps) Close() error {
	var errs []error
	if err := d.Metrics.WriteFile(d.Config.MetricsFile); err != nil {
		errs = append(errs, err)
	}
	if d.Backend != nil {
		if err := d.Backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	// Sync on stderr returns EINVAL on some platforms.
	_ = d.Logger.Sync()
	return errors.Join(errs...)
}

package cmd

import (
	"context"
	"fmt"
	"io"

	"teamdrive/config"
	"teamdrive/database"
	"teamdrive/logger"
	"teamdrive/objectstore"
	"teamdrive/repositories"
	"teamdrive/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

// app is the process wiring shared by every command.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	repos    repositories.Container
	services *services.Container
	registry *prometheus.Registry
	closers  []io.Closer
}

func loadConfig() (*config.Config, io.Closer, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	closer := logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.Rotate.MaxSizeMB,
		MaxBackups: cfg.Log.Rotate.MaxBackups,
		MaxAgeDays: cfg.Log.Rotate.MaxAgeDays,
		Compress:   cfg.Log.Rotate.Compress,
	})
	return cfg, closer, nil
}

// openDatabase loads the configuration and connects to the database only.
func openDatabase() (*app, error) {
	cfg, closer, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, closers: []io.Closer{closer}}
	if err := database.InitDatabase(&cfg.Database); err != nil {
		a.Close()
		return nil, err
	}
	a.db = database.DB
	return a, nil
}

// bootstrap wires the full service container: database, redis, object store
// and metrics.
func bootstrap(ctx context.Context) (*app, error) {
	a, err := openDatabase()
	if err != nil {
		return nil, err
	}
	cfg := a.cfg

	if err := database.InitRedis(&cfg.Redis); err != nil {
		a.Close()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics objectstore.Metrics
	if cfg.Metrics.Enabled {
		if metrics, err = objectstore.NewPrometheusMetrics(a.registry); err != nil {
			a.Close()
			return nil, err
		}
	}

	store, err := objectstore.New(ctx, &cfg.ObjectStore, metrics)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init object store: %w", err)
	}

	a.repos = repositories.NewGormRepositories(a.db, database.RedisClient, cfg.Tree.MaxDepth).BuildContainer()
	a.services = services.NewContainer(a.repos, store, cfg)
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if database.RedisClient != nil {
		database.RedisClient.Close()
	}
	for _, c := range a.closers {
		c.Close()
	}
}

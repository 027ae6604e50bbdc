package bootstrap

import (
	"context"
	"fmt"

	"github.com/edgeless-project/edgeless/common/cache"
	"github.com/edgeless-project/edgeless/common/config"
	"github.com/edgeless-project/edgeless/common/db"
	"github.com/edgeless-project/edgeless/common/logger"
	"github.com/edgeless-project/edgeless/common/telemetry"
)

// Base holds the dependencies every process role shares.
type Base struct {
	Logger       *logger.Logger
	Telemetry    *telemetry.Telemetry
	cleanupFuncs []func() error
}

// NodeComponents holds dependencies for a node-agent process.
type NodeComponents struct {
	Base
	Config *config.NodeConfig
}

// OrchestratorComponents holds dependencies for an orchestrator process.
type OrchestratorComponents struct {
	Base
	Config *config.OrchestratorConfig
	Cache  cache.Cache
}

// ControllerComponents holds dependencies for a controller process.
type ControllerComponents struct {
	Base
	Config *config.ControllerConfig
	DB     *db.DB // nil unless Persistence.Backend == "postgres"
}

// SetupNode wires a node agent process's dependencies.
func SetupNode(ctx context.Context, serviceName string) (*NodeComponents, error) {
	cfg, err := config.LoadNode(serviceName)
	if err != nil {
		return nil, fmt.Errorf("load node config: %w", err)
	}
	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	tel := telemetry.New(cfg.Telemetry.PprofPort, cfg.Telemetry.EnablePprof, log)
	if err := tel.Start(ctx); err != nil {
		return nil, fmt.Errorf("start telemetry: %w", err)
	}
	return &NodeComponents{Base: Base{Logger: log, Telemetry: tel}, Config: cfg}, nil
}

// SetupOrchestrator wires an orchestrator process's dependencies.
func SetupOrchestrator(ctx context.Context, serviceName string) (*OrchestratorComponents, error) {
	cfg, err := config.LoadOrchestrator(serviceName)
	if err != nil {
		return nil, fmt.Errorf("load orchestrator config: %w", err)
	}
	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	tel := telemetry.New(cfg.Telemetry.PprofPort, cfg.Telemetry.EnablePprof, log)
	if err := tel.Start(ctx); err != nil {
		return nil, fmt.Errorf("start telemetry: %w", err)
	}
	c := &OrchestratorComponents{
		Base:   Base{Logger: log, Telemetry: tel},
		Config: cfg,
		Cache:  cache.NewMemoryCache(log),
	}
	c.addCleanup(c.Cache.Close)
	return c, nil
}

// SetupController wires a controller process's dependencies, optionally
// connecting to Postgres when the persistence backend requires it.
func SetupController(ctx context.Context, serviceName string) (*ControllerComponents, error) {
	cfg, err := config.LoadController(serviceName)
	if err != nil {
		return nil, fmt.Errorf("load controller config: %w", err)
	}
	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	tel := telemetry.New(cfg.Telemetry.PprofPort, cfg.Telemetry.EnablePprof, log)
	if err := tel.Start(ctx); err != nil {
		return nil, fmt.Errorf("start telemetry: %w", err)
	}
	c := &ControllerComponents{Base: Base{Logger: log, Telemetry: tel}, Config: cfg}

	if cfg.Persistence.Backend == "postgres" {
		pool, err := db.New(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		c.DB = pool
		c.addCleanup(func() error { pool.Close(); return nil })
	}

	return c, nil
}

// Shutdown performs graceful shutdown, running cleanup functions LIFO.
func (b *Base) Shutdown(ctx context.Context) error {
	b.Logger.Info("shutting down components")

	var errs []error
	for i := len(b.cleanupFuncs) - 1; i >= 0; i-- {
		if err := b.cleanupFuncs[i](); err != nil {
			errs = append(errs, err)
			b.Logger.Error("cleanup error", "error", err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	b.Logger.Info("shutdown complete")
	return nil
}

func (b *Base) addCleanup(fn func() error) {
	b.cleanupFuncs = append(b.cleanupFuncs, fn)
}

// Health checks database health for controller components; other roles
// always report healthy since they hold no external connection.
func (c *ControllerComponents) Health(ctx context.Context) error {
	if c.DB != nil {
		if err := c.DB.Health(ctx); err != nil {
			return fmt.Errorf("database unhealthy: %w", err)
		}
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/edgeless-project/edgeless/common/bootstrap"
	"github.com/edgeless-project/edgeless/common/clients"
	edgelessredis "github.com/edgeless-project/edgeless/common/redis"
	"github.com/edgeless-project/edgeless/common/server"
	"github.com/edgeless-project/edgeless/pkg/api"
	"github.com/edgeless-project/edgeless/pkg/orchestrator"
	"github.com/edgeless-project/edgeless/pkg/placement"
	"github.com/edgeless-project/edgeless/pkg/proxy"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	ctx := context.Background()

	c, err := bootstrap.SetupOrchestrator(ctx, "orchestrator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap orchestrator: %v\n", err)
		os.Exit(1)
	}
	defer c.Shutdown(context.Background())

	httpClient := clients.NewHTTPClient(&http.Client{}, c.Logger)

	px, hub := setupProxy(c)
	if hub != nil {
		go hub.Run(ctx)
	}

	policy := placement.NewPolicy(placement.Strategy(c.Config.PlacementStrategy))

	orch := orchestrator.New(api.DomainID(c.Config.DomainID), c.Config, c.Logger, httpClient, px, policy, c.Telemetry, c.Cache)
	go orch.Run(ctx)
	go orch.RefreshLoop(ctx)
	go orch.DomainPushLoop(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/health", func(ec echo.Context) error {
		return ec.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "orchestrator", "domain_id": c.Config.DomainID})
	})
	if hub != nil && c.Config.Proxy.EnableWSFeed {
		e.GET("/proxy/feed", hub.Handler())
	}

	orchestrator.NewHandlers(orch).Register(e.Group(""))

	srv := server.New("orchestrator", c.Config.Service.Port, e, c.Logger)
	if err := srv.Start(ctx); err != nil {
		c.Logger.Error("orchestrator server error", "error", err)
		os.Exit(1)
	}
}

// setupProxy selects the orchestrator's external proxy implementation
// and, for the memory backend, the optional websocket live feed (§6).
func setupProxy(c *bootstrap.OrchestratorComponents) (proxy.Proxy, *proxy.Hub) {
	switch c.Config.Proxy.Backend {
	case "redis":
		redisClient := goredis.NewClient(&goredis.Options{
			Addr: c.Config.Proxy.RedisAddr,
			DB:   c.Config.Proxy.RedisDB,
		})
		return proxy.NewRedisProxy(edgelessredis.NewClient(redisClient, c.Logger)), nil
	default:
		mem := proxy.NewMemoryProxy()
		if !c.Config.Proxy.EnableWSFeed {
			return mem, nil
		}
		hub := proxy.NewHub()
		mem.SetSubscriber(hub)
		return mem, hub
	}
}

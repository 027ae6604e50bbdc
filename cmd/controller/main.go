package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/edgeless-project/edgeless/common/bootstrap"
	"github.com/edgeless-project/edgeless/common/clients"
	edgelessmw "github.com/edgeless-project/edgeless/common/middleware"
	"github.com/edgeless-project/edgeless/common/ratelimit"
	"github.com/edgeless-project/edgeless/common/server"
	"github.com/edgeless-project/edgeless/pkg/controller"
	"github.com/edgeless-project/edgeless/pkg/persistence"
)

func main() {
	ctx := context.Background()

	c, err := bootstrap.SetupController(ctx, "controller")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap controller: %v\n", err)
		os.Exit(1)
	}
	defer c.Shutdown(context.Background())

	store := setupStore(c)
	defer store.Close()

	httpClient := clients.NewHTTPClient(&http.Client{}, c.Logger)

	ctrl := controller.New(c.Config, c.Logger, httpClient, store, c.Telemetry)
	if err := ctrl.LoadPersisted(ctx); err != nil {
		c.Logger.Error("failed to load persisted workflows", "error", err)
	}

	go ctrl.Run(ctx)
	go ctrl.RefreshLoop(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/health", func(ec echo.Context) error {
		status := http.StatusOK
		body := map[string]string{"status": "ok", "service": "controller"}
		if err := c.Health(ec.Request().Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["error"] = err.Error()
		}
		return ec.JSON(status, body)
	})

	api := e.Group("")
	if c.Config.RateLimit.Enabled {
		limiter := ratelimit.NewRateLimiter(goredis.NewClient(&goredis.Options{
			Addr: c.Config.RateLimit.RedisAddr,
			DB:   c.Config.RateLimit.RedisDB,
		}), c.Logger)
		api.Use(edgelessmw.GlobalRateLimitMiddleware(limiter, c.Config.RateLimit.GlobalLimit))
		api.Use(edgelessmw.DomainRateLimitMiddleware(limiter, c.Config.RateLimit.PerDomainLimit, "domain_id"))
	}
	controller.NewHandlers(ctrl).Register(api)

	srv := server.New("controller", c.Config.Service.Port, e, c.Logger)
	if err := srv.Start(ctx); err != nil {
		c.Logger.Error("controller server error", "error", err)
		os.Exit(1)
	}
}

// setupStore selects the controller's persistence backend (§4.4
// Persistence, §6 persisted state layout).
func setupStore(c *bootstrap.ControllerComponents) persistence.Store {
	if c.Config.Persistence.Backend == "postgres" {
		return persistence.NewPostgresStore(c.DB)
	}
	return persistence.NewFileStore(c.Config.Persistence.FilePath)
}

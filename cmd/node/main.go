package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/edgeless-project/edgeless/common/bootstrap"
	"github.com/edgeless-project/edgeless/common/clients"
	"github.com/edgeless-project/edgeless/common/config"
	"github.com/edgeless-project/edgeless/common/server"
	"github.com/edgeless-project/edgeless/pkg/agent"
	"github.com/edgeless-project/edgeless/pkg/agent/resource"
	"github.com/edgeless-project/edgeless/pkg/agent/runtime"
	"github.com/edgeless-project/edgeless/pkg/api"
)

func main() {
	ctx := context.Background()

	c, err := bootstrap.SetupNode(ctx, "node")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap node: %v\n", err)
		os.Exit(1)
	}
	defer c.Shutdown(context.Background())

	httpClient := clients.NewHTTPClient(&http.Client{}, c.Logger)

	runtimes := setupRuntimes(c.Config.Runtimes)
	resources := setupResources(c.Config)

	nodeID := api.NewID()
	a := agent.New(nodeID, c.Config, c.Logger, httpClient, runtimes, resources, c.Telemetry)

	go a.Run(ctx)
	go a.RegistrationLoop(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/health", func(ec echo.Context) error {
		return ec.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "node", "node_id": nodeID.String()})
	})

	agent.NewHandlers(a).Register(e.Group(""))

	srv := server.New("node", c.Config.Service.Port, e, c.Logger)
	if err := srv.Start(ctx); err != nil {
		c.Logger.Error("node agent server error", "error", err)
		os.Exit(1)
	}
}

// setupRuntimes wires one runtime per configured format tag: "GO_NATIVE"
// gets the in-process runtime, anything else is treated as an external
// collaborator launched over the subprocess protocol (§1 scope, pkg/agent
// runtime package doc).
func setupRuntimes(formats []string) *runtime.Registry {
	var runtimes []runtime.Runtime
	for _, format := range formats {
		if format == "GO_NATIVE" {
			runtimes = append(runtimes, runtime.NewNativeRuntime())
			continue
		}
		runtimes = append(runtimes, runtime.NewSubprocessRuntime(format, ""))
	}
	if len(runtimes) == 0 {
		runtimes = append(runtimes, runtime.NewNativeRuntime())
	}
	return runtime.NewRegistry(runtimes...)
}

// setupResources wires the reference resource providers this node ships
// with, plus a "portal" advertiser when this node's domain is configured
// to bridge other domains (§4.4 portal reachability).
func setupResources(cfg *config.NodeConfig) *resource.Registry {
	providers := []resource.Provider{resource.NewMemLog(1000)}

	registry := resource.NewRegistry(providers...)

	if len(cfg.PortalReachableDomains) > 0 {
		registry = resource.NewRegistry(append(providers, resource.NewPortalAdvertiser())...)
		registry.Advertise("portal", map[string]string{
			"reachable_domains": strings.Join(cfg.PortalReachableDomains, ","),
		})
	}
	return registry
}

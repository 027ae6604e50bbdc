package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServiceConfig holds settings common to every process role.
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// TelemetryConfig holds observability settings shared by every role.
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// PersistenceConfig controls the controller's workflow persistence backend.
type PersistenceConfig struct {
	Backend  string // "file" or "postgres"
	FilePath string
}

// DatabaseConfig holds Postgres connection settings, used only when
// PersistenceConfig.Backend == "postgres".
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// ProxyConfig controls the orchestrator's external proxy implementation.
type ProxyConfig struct {
	Backend      string // "memory" or "redis"
	RedisAddr    string
	RedisDB      int
	WSPort       int
	EnableWSFeed bool
}

// NodeConfig holds node-agent-specific settings.
type NodeConfig struct {
	Service           ServiceConfig
	Telemetry         TelemetryConfig
	AgentURL          string
	InvocationURL     string
	OrchestratorURL   string
	RegistrationEvery time.Duration
	Runtimes          []string
	ResourceClasses   []string
	PortalReachableDomains []string
}

// OrchestratorConfig holds orchestrator-specific settings.
type OrchestratorConfig struct {
	Service            ServiceConfig
	Telemetry          TelemetryConfig
	Proxy              ProxyConfig
	DomainID           string
	OrchestratorURL    string
	ControllerURL      string
	RefreshEvery       time.Duration
	NodeStaleAfter     time.Duration
	PlacementStrategy  string // "random" or "round-robin"
	DomainPushEvery    time.Duration
}

// ControllerConfig holds controller-specific settings.
type ControllerConfig struct {
	Service        ServiceConfig
	Telemetry      TelemetryConfig
	Persistence    PersistenceConfig
	Database       DatabaseConfig
	RefreshEvery   time.Duration
	DomainStaleAfter time.Duration
	DomainBal      string
	RateLimit      RateLimitConfig
}

// RateLimitConfig controls the controller's optional Redis-backed request
// throttling on the external Workflow Instance API.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisDB       int
	GlobalLimit   int64 // requests/minute across every caller
	PerDomainLimit int64 // requests/minute per registering domain_id
}

// LoadNode loads node-agent configuration from the environment.
func LoadNode(serviceName string) (*NodeConfig, error) {
	cfg := &NodeConfig{
		Service:           loadService(serviceName, 9000),
		Telemetry:         loadTelemetry(6061),
		AgentURL:          getEnv("AGENT_URL", "http://localhost:9000"),
		InvocationURL:     getEnv("INVOCATION_URL", "http://localhost:9000"),
		OrchestratorURL:   getEnv("ORCHESTRATOR_URL", "http://localhost:9001"),
		RegistrationEvery: getEnvDuration("REGISTRATION_INTERVAL", 2*time.Second),
		Runtimes:          getEnvSlice("NODE_RUNTIMES", []string{"RUST_WASM"}),
		ResourceClasses:   getEnvSlice("NODE_RESOURCE_CLASSES", nil),
		PortalReachableDomains: getEnvSlice("NODE_PORTAL_REACHABLE_DOMAINS", nil),
	}
	return cfg, nil
}

// LoadOrchestrator loads orchestrator configuration from the environment.
func LoadOrchestrator(serviceName string) (*OrchestratorConfig, error) {
	cfg := &OrchestratorConfig{
		Service:         loadService(serviceName, 9001),
		Telemetry:       loadTelemetry(6062),
		DomainID:        getEnv("DOMAIN_ID", "domain-1"),
		OrchestratorURL: getEnv("ORCHESTRATOR_URL", "http://localhost:9001"),
		ControllerURL:   getEnv("CONTROLLER_URL", "http://localhost:9002"),
		RefreshEvery:      getEnvDuration("REFRESH_INTERVAL", 2*time.Second),
		NodeStaleAfter:    getEnvDuration("NODE_STALE_AFTER", 10*time.Second),
		PlacementStrategy: getEnv("PLACEMENT_STRATEGY", "random"),
		DomainPushEvery:   getEnvDuration("DOMAIN_PUSH_INTERVAL", 2*time.Second),
		Proxy: ProxyConfig{
			Backend:      getEnv("PROXY_BACKEND", "memory"),
			RedisAddr:    getEnv("PROXY_REDIS_ADDR", "localhost:6379"),
			RedisDB:      getEnvInt("PROXY_REDIS_DB", 0),
			WSPort:       getEnvInt("PROXY_WS_PORT", 9011),
			EnableWSFeed: getEnvBool("PROXY_ENABLE_WS_FEED", true),
		},
	}
	return cfg, nil
}

// LoadController loads controller configuration from the environment.
func LoadController(serviceName string) (*ControllerConfig, error) {
	cfg := &ControllerConfig{
		Service:          loadService(serviceName, 9002),
		Telemetry:        loadTelemetry(6063),
		RefreshEvery:     getEnvDuration("REFRESH_INTERVAL", 2*time.Second),
		DomainStaleAfter: getEnvDuration("DOMAIN_STALE_AFTER", 10*time.Second),
		DomainBal:        getEnv("DOMAIN_BAL", ""),
		Persistence: PersistenceConfig{
			Backend:  getEnv("PERSISTENCE_BACKEND", "file"),
			FilePath: getEnv("PERSISTENCE_FILE", "edgeless-workflows.json"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "edgeless"),
			User:        getEnv("POSTGRES_USER", "edgeless"),
			Password:    getEnv("POSTGRES_PASSWORD", "edgeless"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:      getEnv("RATE_LIMIT_REDIS_ADDR", "localhost:6379"),
			RedisDB:        getEnvInt("RATE_LIMIT_REDIS_DB", 1),
			GlobalLimit:    int64(getEnvInt("RATE_LIMIT_GLOBAL_PER_MINUTE", 600)),
			PerDomainLimit: int64(getEnvInt("RATE_LIMIT_PER_DOMAIN_PER_MINUTE", 60)),
		},
	}
	return cfg, cfg.Validate()
}

// Validate checks controller configuration invariants.
func (c *ControllerConfig) Validate() error {
	if c.Persistence.Backend != "file" && c.Persistence.Backend != "postgres" {
		return fmt.Errorf("invalid persistence backend: %s", c.Persistence.Backend)
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string.
func (c *ControllerConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database,
	)
}

func loadService(name string, defaultPort int) ServiceConfig {
	return ServiceConfig{
		Name:        name,
		Port:        getEnvInt("PORT", defaultPort),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
	}
}

func loadTelemetry(defaultPprofPort int) TelemetryConfig {
	return TelemetryConfig{
		EnablePprof: getEnvBool("ENABLE_PPROF", false),
		PprofPort:   getEnvInt("PPROF_PORT", defaultPprofPort),
	}
}

// Helper functions for parsing typed values out of environment variables.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

package main

import (
	"time"

	"github.com/dmitrymomot/tenantgate/pkg/environment"
	"github.com/dmitrymomot/tenantgate/pkg/httpserver"
	"github.com/dmitrymomot/tenantgate/pkg/logger"
)

// Tenant store backends.
const (
	storeMemory   = "memory"
	storePostgres = "postgres"
	storeMongo    = "mongo"
)

// Failure budget stores.
const (
	probeStoreMemory = "memory"
	probeStoreRedis  = "redis"
)

// Violation sinks.
const (
	sinkNone       = "none"
	sinkRedis      = "redis"
	sinkPostgres   = "postgres"
	sinkOpenSearch = "opensearch"
)

type Config struct {
	Env     environment.Environment `env:"APP_ENV" envDefault:"development"`
	AppName string                  `env:"APP_NAME" envDefault:"tenantgate"`
	Log     logger.Config

	Store    string `env:"TENANT_STORE" envDefault:"memory"`
	SeedFile string `env:"TENANT_SEED_FILE"`

	CacheTTL           time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`
	CacheSize          int           `env:"TENANT_CACHE_SIZE" envDefault:"100"`
	LookupTimeout      time.Duration `env:"TENANT_LOOKUP_TIMEOUT" envDefault:"2s"`
	SuperAdminDomains  []string      `env:"TENANT_SUPER_ADMIN_DOMAINS" envSeparator:"," envDefault:"localhost"`
	SuperAdminPrefixes []string      `env:"TENANT_SUPER_ADMIN_PREFIXES" envSeparator:","`
	StatusPolicy       string        `env:"TENANT_STATUS_POLICY" envDefault:"cached"`

	BaseOrigins      []string      `env:"TRUSTED_BASE_ORIGINS" envSeparator:","`
	EmergencyOrigins []string      `env:"TRUSTED_EMERGENCY_ORIGINS" envSeparator:","`
	RefreshInterval  time.Duration `env:"TRUSTED_REFRESH_INTERVAL" envDefault:"5m"`

	IsolationBufferSize int    `env:"ISOLATION_BUFFER_SIZE" envDefault:"1000"`
	ViolationSink       string `env:"VIOLATION_SINK" envDefault:"none"`
	ViolationStream     string `env:"VIOLATION_STREAM" envDefault:"tenantgate:isolation:violations"`
	ViolationStreamLen  int64  `env:"VIOLATION_STREAM_MAXLEN" envDefault:"100000"`

	// TrustedIPHeaders lists proxy headers, in priority order, that carry the
	// client address. Leave empty when clients connect directly.
	TrustedIPHeaders []string `env:"TRUSTED_IP_HEADERS" envSeparator:","`

	// TrustedDomainHeaders enables X-Tenant-Domain and X-Original-Host as
	// sources of the tenant domain. Set it only when a proxy in front of the
	// gateway overwrites these headers; otherwise only Host is used.
	TrustedDomainHeaders []string `env:"TENANT_TRUSTED_DOMAIN_HEADERS" envSeparator:","`

	// A client IP may cause ProbeLimit unresolved-domain failures before it
	// is throttled; one failure is forgiven every ProbeRefillInterval.
	// Zero disables throttling.
	ProbeLimit          int           `env:"PROBE_LIMIT" envDefault:"30"`
	ProbeRefillInterval time.Duration `env:"PROBE_REFILL_INTERVAL" envDefault:"2s"`
	ProbeStore          string        `env:"PROBE_STORE" envDefault:"memory"`

	// UpstreamURL receives tenant-scoped /api requests once they passed
	// resolution and isolation checks. Without it /api only answers whoami.
	UpstreamURL string `env:"UPSTREAM_URL"`

	HTTP httpserver.Config
}

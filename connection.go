package vecrag

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kailas-cloud/vecrag/internal/config"
	"github.com/kailas-cloud/vecrag/internal/domain"
)

// Vector store drivers.
const (
	DriverRedis  = "redis"
	DriverValkey = "valkey"
	DriverQdrant = "qdrant"
)

// Connection defaults.
const (
	DefaultPort             = 1972
	DefaultNamespace        = "USER"
	DefaultUsername         = "demo"
	DefaultPassword         = "demo"
	DefaultReadinessTimeout = 10 * time.Second
)

// HostEnv names the environment variable that overrides the default host.
const HostEnv = config.HostEnv

// Connection describes the vector store to talk to.
// Zero fields are filled from the defaults by New.
type Connection struct {
	Driver    string
	Host      string
	Port      int
	Namespace string // key prefix on Redis/Valkey, alias prefix on Qdrant
	Username  string
	Password  string // API key on Qdrant
	Anonymous bool   // connect without credentials instead of falling back to demo/demo

	Standalone       bool // Redis/Valkey: skip cluster topology discovery
	UseTLS           bool // Qdrant only
	ReadinessTimeout time.Duration
}

// DefaultConnection returns the connection used when none is configured:
// $IRIS_HOSTNAME (or localhost), port 1972, namespace USER, demo/demo.
func DefaultConnection() Connection {
	return Connection{}.withDefaults()
}

// Addr returns host:port.
func (c Connection) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Connection) withDefaults() Connection {
	if c.Driver == "" {
		c.Driver = DriverRedis
	}
	if c.Host == "" {
		c.Host = config.DefaultHost()
	}
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.Anonymous {
		c.Username, c.Password = "", ""
	} else if c.Username == "" && c.Password == "" {
		c.Username = DefaultUsername
		c.Password = DefaultPassword
	}
	if c.ReadinessTimeout <= 0 {
		c.ReadinessTimeout = DefaultReadinessTimeout
	}
	return c
}

func (c Connection) validate() error {
	switch c.Driver {
	case DriverRedis, DriverValkey, DriverQdrant:
	default:
		return fmt.Errorf("vecrag: unknown driver %q: %w", c.Driver, domain.ErrConfiguration)
	}
	if c.Port > 65535 {
		return fmt.Errorf("vecrag: port %d out of range: %w", c.Port, domain.ErrConfiguration)
	}
	return nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	PresenceBackendStore = "store"
	PresenceBackendRedis = "redis"
	PresenceBackendLAN   = "lan"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	PeerPort    int    `mapstructure:"PEER_PORT"`
	Env         string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	StationName string `mapstructure:"STATION_NAME"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBSchema    string `mapstructure:"DB_SCHEMA"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	PresenceBackend    string `mapstructure:"PRESENCE_BACKEND"`
	RedisURL           string `mapstructure:"REDIS_URL"`
	DiscoveryPort      int    `mapstructure:"DISCOVERY_PORT"`
	DiscoveryBroadcast string `mapstructure:"DISCOVERY_BROADCAST"`
	AdvertiseAddress   string `mapstructure:"ADVERTISE_ADDRESS"`

	HeartbeatInterval    time.Duration `mapstructure:"HEARTBEAT_INTERVAL"`
	PresenceMaxAge       time.Duration `mapstructure:"PRESENCE_MAX_AGE"`
	PresencePollInterval time.Duration `mapstructure:"PRESENCE_POLL_INTERVAL"`
	RoomPollInterval     time.Duration `mapstructure:"ROOM_POLL_INTERVAL"`
	QueuePollInterval    time.Duration `mapstructure:"QUEUE_POLL_INTERVAL"`
	DedupWindow          time.Duration `mapstructure:"DEDUP_WINDOW"`
	PeerTimeout          time.Duration `mapstructure:"PEER_TIMEOUT"`

	DefaultActionRoom int      `mapstructure:"DEFAULT_ACTION_ROOM"`
	ClinicTimezone    string   `mapstructure:"CLINIC_TIMEZONE"`
	MemoryRooms       []string `mapstructure:"MEMORY_ROOMS"`
	CORSOrigins       []string `mapstructure:"CORS_ORIGINS"`
}

var keys = []string{
	"PORT", "PEER_PORT", "ENV", "LOG_LEVEL", "STATION_NAME",
	"STORE_DRIVER", "DATABASE_URL", "DB_SCHEMA", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"PRESENCE_BACKEND", "REDIS_URL", "DISCOVERY_PORT", "DISCOVERY_BROADCAST", "ADVERTISE_ADDRESS",
	"HEARTBEAT_INTERVAL", "PRESENCE_MAX_AGE", "PRESENCE_POLL_INTERVAL",
	"ROOM_POLL_INTERVAL", "QUEUE_POLL_INTERVAL", "DEDUP_WINDOW", "PEER_TIMEOUT",
	"DEFAULT_ACTION_ROOM", "CLINIC_TIMEZONE", "MEMORY_ROOMS", "CORS_ORIGINS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("PEER_PORT", 7070)
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("DB_SCHEMA", "coord")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("PRESENCE_BACKEND", PresenceBackendStore)
	v.SetDefault("DISCOVERY_PORT", 7071)
	v.SetDefault("DISCOVERY_BROADCAST", "255.255.255.255")
	v.SetDefault("HEARTBEAT_INTERVAL", "5s")
	v.SetDefault("PRESENCE_MAX_AGE", "30s")
	v.SetDefault("PRESENCE_POLL_INTERVAL", "5s")
	v.SetDefault("ROOM_POLL_INTERVAL", "3s")
	v.SetDefault("QUEUE_POLL_INTERVAL", "3s")
	v.SetDefault("DEDUP_WINDOW", "30s")
	v.SetDefault("PEER_TIMEOUT", "3s")
	v.SetDefault("DEFAULT_ACTION_ROOM", 1)
	v.SetDefault("CLINIC_TIMEZONE", "Local")
	v.SetDefault("MEMORY_ROOMS", "Salle 1,Salle 2,Salle 3")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma-separated lists arrive as a single element from the environment.
	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.MemoryRooms = splitList(cfg.MemoryRooms, v.GetString("MEMORY_ROOMS"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(parsed []string, raw string) []string {
	if len(parsed) > 1 {
		return parsed
	}
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Location returns the clinic time zone used for civil-day boundaries.
func (c *Config) Location() (*time.Location, error) {
	if c.ClinicTimezone == "" || c.ClinicTimezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration can run a workstation.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", StoreDriverPostgres)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}

	switch c.PresenceBackend {
	case PresenceBackendStore, PresenceBackendLAN:
	case PresenceBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when PRESENCE_BACKEND is %q", PresenceBackendRedis)
		}
	default:
		return fmt.Errorf("PRESENCE_BACKEND must be %q, %q or %q, got %q",
			PresenceBackendStore, PresenceBackendRedis, PresenceBackendLAN, c.PresenceBackend)
	}

	intervals := map[string]time.Duration{
		"HEARTBEAT_INTERVAL":     c.HeartbeatInterval,
		"PRESENCE_MAX_AGE":       c.PresenceMaxAge,
		"PRESENCE_POLL_INTERVAL": c.PresencePollInterval,
		"ROOM_POLL_INTERVAL":     c.RoomPollInterval,
		"QUEUE_POLL_INTERVAL":    c.QueuePollInterval,
		"DEDUP_WINDOW":           c.DedupWindow,
		"PEER_TIMEOUT":           c.PeerTimeout,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.PresenceMaxAge < c.HeartbeatInterval {
		return fmt.Errorf("PRESENCE_MAX_AGE (%s) must not be shorter than HEARTBEAT_INTERVAL (%s)",
			c.PresenceMaxAge, c.HeartbeatInterval)
	}

	if c.PeerPort <= 0 || c.PeerPort > 65535 {
		return fmt.Errorf("PEER_PORT out of range: %d", c.PeerPort)
	}
	if c.PresenceBackend == PresenceBackendLAN && (c.DiscoveryPort <= 0 || c.DiscoveryPort > 65535) {
		return fmt.Errorf("DISCOVERY_PORT out of range: %d", c.DiscoveryPort)
	}
	if c.DefaultActionRoom <= 0 {
		return fmt.Errorf("DEFAULT_ACTION_ROOM must be a room id, got %d", c.DefaultActionRoom)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

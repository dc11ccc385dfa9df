package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Backend    BackendConfig    `json:"backend"`
	Cache      CacheConfig      `json:"cache"`
	Usage      UsageConfig      `json:"usage"`
	Transition TransitionConfig `json:"transition"`
	Auth       AuthConfig       `json:"auth"`
	Tiers      []TierConfig     `json:"tiers"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
}

type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// The shared backing database instance. Endpoints are alternative
// connection endpoints (e.g. pooler frontends) of the same instance.
type BackendConfig struct {
	Endpoints        []string `json:"endpoints"`
	ExplainPath      string   `json:"explain_path"`
	SessionAdminPath string   `json:"session_admin_path"`
	HealthPath       string   `json:"health_path"`
	Strategy         string   `json:"strategy"` // "round_robin" "least_connections"
	PlannerTimeoutMs int      `json:"planner_timeout_ms"`
}

type CacheConfig struct {
	TTLSeconds int `json:"ttl_seconds"`
}

type UsageConfig struct {
	QueueSize            int `json:"queue_size"`
	FlushIntervalSeconds int `json:"flush_interval_seconds"`
}

type TransitionConfig struct {
	GraceSeconds  int `json:"grace_seconds"`
	RetentionDays int `json:"retention_days"`
}

type AuthConfig struct {
	JWTExpiryHours int `json:"jwt_expiry_hours"`
}

// Seed values for the tier catalog. Applied only when the
// tier_definitions table is empty.
type TierConfig struct {
	Name               string  `json:"name"`
	MaxConnections     int     `json:"max_connections"`
	RequestsPerSecond  *int    `json:"requests_per_second"`
	CostCeiling        float64 `json:"cost_ceiling"`
	TimeoutMs          int     `json:"timeout_ms"`
	WorkMemMB          int     `json:"work_mem_mb"`
	MaxParallelWorkers int     `json:"max_parallel_workers"`
	Algorithm          string  `json:"algorithm"`
}

func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	config.applyEnv()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Backend.ExplainPath == "" {
		c.Backend.ExplainPath = "/v1/explain"
	}
	if c.Backend.SessionAdminPath == "" {
		c.Backend.SessionAdminPath = "/v1/session-defaults"
	}
	if c.Backend.HealthPath == "" {
		c.Backend.HealthPath = "/health"
	}
	if c.Backend.Strategy == "" {
		c.Backend.Strategy = "least_connections"
	}
	if c.Backend.PlannerTimeoutMs <= 0 {
		c.Backend.PlannerTimeoutMs = 500
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 30
	}
	if c.Usage.QueueSize <= 0 {
		c.Usage.QueueSize = 10000
	}
	if c.Usage.FlushIntervalSeconds <= 0 {
		c.Usage.FlushIntervalSeconds = 5
	}
	if c.Transition.GraceSeconds <= 0 {
		c.Transition.GraceSeconds = 10
	}
	if c.Transition.RetentionDays <= 0 {
		c.Transition.RetentionDays = 90
	}
	if c.Auth.JWTExpiryHours <= 0 {
		c.Auth.JWTExpiryHours = 24
	}
}

// Secrets come from the environment, not the config file.
func (c *Config) applyEnv() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
}

func (r *RedisConfig) GetRedisAddr() string {
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", host, port)
}

func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (t *TransitionConfig) Grace() time.Duration {
	return time.Duration(t.GraceSeconds) * time.Second
}

func (u *UsageConfig) FlushInterval() time.Duration {
	return time.Duration(u.FlushIntervalSeconds) * time.Second
}

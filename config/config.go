package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Collision CollisionConfig
	Mission   MissionConfig
	Interview InterviewConfig
	Janitor   JanitorConfig
	LLM       LLMConfig
}

// LLMConfig points at the external TextGenerator/Judge service.
type LLMConfig struct {
	BaseURL string        `mapstructure:"LLM_BASE_URL"`
	APIKey  string        `mapstructure:"LLM_API_KEY"`
	Timeout time.Duration `mapstructure:"LLM_TIMEOUT"`
}

// ServerConfig holds HTTP server settings for the core's HTTP surface
// (/healthz and position ingest).
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"POSTGRES_HOST"`
	Port     int    `mapstructure:"POSTGRES_PORT"`
	User     string `mapstructure:"POSTGRES_USER"`
	Password string `mapstructure:"POSTGRES_PASSWORD"`
	DBName   string `mapstructure:"POSTGRES_DB"`
	SSLMode  string `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns int32  `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns int32  `mapstructure:"POSTGRES_MIN_CONNS"`
}

// RedisConfig holds Redis connection settings. Redis backs the ephemeral
// Tier 2 state: collision pairs, the stability queue, in-flight locks and
// cooldowns.
type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
	PoolSize int    `mapstructure:"REDIS_POOL_SIZE"`
}

// NATSConfig holds the connection settings for the durable mission queue
// and the fire-and-forget event sink.
type NATSConfig struct {
	URL              string        `mapstructure:"NATS_URL"`
	MissionSubject   string        `mapstructure:"NATS_MISSION_SUBJECT"`
	MissionStream    string        `mapstructure:"NATS_MISSION_STREAM"`
	MissionDurable   string        `mapstructure:"NATS_MISSION_DURABLE"`
	EventsSubjectFmt string        `mapstructure:"NATS_EVENTS_SUBJECT_FMT"`
	MaxReconnects    int           `mapstructure:"NATS_MAX_RECONNECTS"`
	ReconnectWait    time.Duration `mapstructure:"NATS_RECONNECT_WAIT"`
	ConnectTimeout   time.Duration `mapstructure:"NATS_CONNECT_TIMEOUT"`
}

// CollisionConfig tunes debounce, stability and aging thresholds.
type CollisionConfig struct {
	MinMovementMeters  float64       `mapstructure:"MIN_MOVEMENT_METERS"`
	MinUpdateInterval  time.Duration `mapstructure:"MIN_UPDATE_INTERVAL"`
	ClockDriftMax      time.Duration `mapstructure:"CLOCK_DRIFT_MAX"`
	StabilityWindow    time.Duration `mapstructure:"STABILITY_WINDOW"`
	StaleWindow        time.Duration `mapstructure:"STALE_WINDOW"`
	StabilityTick      time.Duration `mapstructure:"STABILITY_TICK"`
	SpatialSearchLimit int           `mapstructure:"SPATIAL_SEARCH_LIMIT"`
}

// MissionConfig tunes mission creation, retries and cooldown durations.
type MissionConfig struct {
	InFlightTTL      time.Duration `mapstructure:"IN_FLIGHT_TTL"`
	MaxAttempts      int           `mapstructure:"MISSION_MAX_ATTEMPTS"`
	CooldownMatched  time.Duration `mapstructure:"COOLDOWN_MATCHED"`
	CooldownRejected time.Duration `mapstructure:"COOLDOWN_REJECTED"`
	CooldownNotified time.Duration `mapstructure:"COOLDOWN_NOTIFIED"`
	QueueHighwater   int           `mapstructure:"QUEUE_HIGHWATER"`
}

// InterviewConfig tunes the InterviewRunner worker pool and turn budget.
type InterviewConfig struct {
	Concurrency   int           `mapstructure:"INTERVIEW_CONCURRENCY"`
	MaxOwnerTurns int           `mapstructure:"MAX_OWNER_TURNS"`
	MissionTimeout time.Duration `mapstructure:"MISSION_TIMEOUT"`
}

// JanitorConfig tunes the periodic sweeper.
type JanitorConfig struct {
	Tick               time.Duration `mapstructure:"JANITOR_TICK"`
	CollisionEventTTL  time.Duration `mapstructure:"COLLISION_EVENT_TTL"`
	PendingMatchTTL    time.Duration `mapstructure:"PENDING_MATCH_TTL"`
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// ── Defaults ────────────────────────────────────────
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "5s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	viper.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "orbit")
	viper.SetDefault("POSTGRES_PASSWORD", "orbit_secret")
	viper.SetDefault("POSTGRES_DB", "orbit_db")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")
	viper.SetDefault("POSTGRES_MAX_CONNS", 50)
	viper.SetDefault("POSTGRES_MIN_CONNS", 10)

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_POOL_SIZE", 100)

	viper.SetDefault("NATS_URL", "nats://localhost:4222")
	viper.SetDefault("NATS_MISSION_SUBJECT", "orbit.missions")
	viper.SetDefault("NATS_MISSION_STREAM", "ORBIT_MISSIONS")
	viper.SetDefault("NATS_MISSION_DURABLE", "interview-runner")
	viper.SetDefault("NATS_EVENTS_SUBJECT_FMT", "orbit.events.%s")
	viper.SetDefault("NATS_MAX_RECONNECTS", 10)
	viper.SetDefault("NATS_RECONNECT_WAIT", "2s")
	viper.SetDefault("NATS_CONNECT_TIMEOUT", "5s")

	viper.SetDefault("MIN_MOVEMENT_METERS", 20.0)
	viper.SetDefault("MIN_UPDATE_INTERVAL", "3s")
	viper.SetDefault("CLOCK_DRIFT_MAX", "30s")
	viper.SetDefault("STABILITY_WINDOW", "30s")
	viper.SetDefault("STALE_WINDOW", "45s")
	viper.SetDefault("STABILITY_TICK", "5s")
	viper.SetDefault("SPATIAL_SEARCH_LIMIT", 200)

	viper.SetDefault("IN_FLIGHT_TTL", "60s")
	viper.SetDefault("MISSION_MAX_ATTEMPTS", 3)
	viper.SetDefault("COOLDOWN_MATCHED", "336h") // 14d
	viper.SetDefault("COOLDOWN_REJECTED", "24h")
	viper.SetDefault("COOLDOWN_NOTIFIED", "1h")
	viper.SetDefault("QUEUE_HIGHWATER", 1000)

	viper.SetDefault("INTERVIEW_CONCURRENCY", 4)
	viper.SetDefault("MAX_OWNER_TURNS", 3)
	viper.SetDefault("MISSION_TIMEOUT", "90s")

	viper.SetDefault("JANITOR_TICK", "10m")
	viper.SetDefault("COLLISION_EVENT_TTL", "48h")
	viper.SetDefault("PENDING_MATCH_TTL", "24h")

	viper.SetDefault("LLM_BASE_URL", "http://localhost:9090")
	viper.SetDefault("LLM_API_KEY", "")
	viper.SetDefault("LLM_TIMEOUT", "30s")

	// Try to read .env file. If it doesn't exist (e.g., inside Docker),
	// env vars injected by the deployment environment are used instead.
	_ = viper.ReadInConfig()

	cfg := &Config{}

	cfg.Server = ServerConfig{
		Host:         viper.GetString("SERVER_HOST"),
		Port:         viper.GetInt("SERVER_PORT"),
		ReadTimeout:  viper.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: viper.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  viper.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	cfg.Postgres = PostgresConfig{
		Host:     viper.GetString("POSTGRES_HOST"),
		Port:     viper.GetInt("POSTGRES_PORT"),
		User:     viper.GetString("POSTGRES_USER"),
		Password: viper.GetString("POSTGRES_PASSWORD"),
		DBName:   viper.GetString("POSTGRES_DB"),
		SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
		MaxConns: viper.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns: viper.GetInt32("POSTGRES_MIN_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     viper.GetString("REDIS_HOST"),
		Port:     viper.GetInt("REDIS_PORT"),
		Password: viper.GetString("REDIS_PASSWORD"),
		DB:       viper.GetInt("REDIS_DB"),
		PoolSize: viper.GetInt("REDIS_POOL_SIZE"),
	}

	cfg.NATS = NATSConfig{
		URL:              viper.GetString("NATS_URL"),
		MissionSubject:   viper.GetString("NATS_MISSION_SUBJECT"),
		MissionStream:    viper.GetString("NATS_MISSION_STREAM"),
		MissionDurable:   viper.GetString("NATS_MISSION_DURABLE"),
		EventsSubjectFmt: viper.GetString("NATS_EVENTS_SUBJECT_FMT"),
		MaxReconnects:    viper.GetInt("NATS_MAX_RECONNECTS"),
		ReconnectWait:    viper.GetDuration("NATS_RECONNECT_WAIT"),
		ConnectTimeout:   viper.GetDuration("NATS_CONNECT_TIMEOUT"),
	}

	cfg.Collision = CollisionConfig{
		MinMovementMeters:  viper.GetFloat64("MIN_MOVEMENT_METERS"),
		MinUpdateInterval:  viper.GetDuration("MIN_UPDATE_INTERVAL"),
		ClockDriftMax:      viper.GetDuration("CLOCK_DRIFT_MAX"),
		StabilityWindow:    viper.GetDuration("STABILITY_WINDOW"),
		StaleWindow:        viper.GetDuration("STALE_WINDOW"),
		StabilityTick:      viper.GetDuration("STABILITY_TICK"),
		SpatialSearchLimit: viper.GetInt("SPATIAL_SEARCH_LIMIT"),
	}

	cfg.Mission = MissionConfig{
		InFlightTTL:      viper.GetDuration("IN_FLIGHT_TTL"),
		MaxAttempts:      viper.GetInt("MISSION_MAX_ATTEMPTS"),
		CooldownMatched:  viper.GetDuration("COOLDOWN_MATCHED"),
		CooldownRejected: viper.GetDuration("COOLDOWN_REJECTED"),
		CooldownNotified: viper.GetDuration("COOLDOWN_NOTIFIED"),
		QueueHighwater:   viper.GetInt("QUEUE_HIGHWATER"),
	}

	cfg.Interview = InterviewConfig{
		Concurrency:    viper.GetInt("INTERVIEW_CONCURRENCY"),
		MaxOwnerTurns:  viper.GetInt("MAX_OWNER_TURNS"),
		MissionTimeout: viper.GetDuration("MISSION_TIMEOUT"),
	}

	cfg.Janitor = JanitorConfig{
		Tick:              viper.GetDuration("JANITOR_TICK"),
		CollisionEventTTL: viper.GetDuration("COLLISION_EVENT_TTL"),
		PendingMatchTTL:   viper.GetDuration("PENDING_MATCH_TTL"),
	}

	cfg.LLM = LLMConfig{
		BaseURL: viper.GetString("LLM_BASE_URL"),
		APIKey:  viper.GetString("LLM_API_KEY"),
		Timeout: viper.GetDuration("LLM_TIMEOUT"),
	}

	return cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Session  SessionConfig  `yaml:"session"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Latest   LatestConfig   `yaml:"latest"`
	Pushover PushoverConfig `yaml:"pushover"`
	Chime    ChimeConfig    `yaml:"chime"`
	Log      LogConfig      `yaml:"log"`
}

type MQTTConfig struct {
	Broker          string `yaml:"broker"`
	ClientIDPrefix  string `yaml:"client_id_prefix"`
	DeviceHash      string `yaml:"device_hash"`
	DataTopic       string `yaml:"data_topic"`
	CommandTopic    string `yaml:"command_topic"`
	SubscribeQoS    int    `yaml:"subscribe_qos"`
	ConnectTimeout  string `yaml:"connect_timeout"`
	ReconnectPeriod string `yaml:"reconnect_period"`
	KeepAlive       string `yaml:"keepalive"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
}

type SessionConfig struct {
	KeepAliveInterval   string  `yaml:"keep_alive_interval"`
	CommandEncoding     string  `yaml:"command_encoding"`
	VoltageThreshold    float64 `yaml:"voltage_threshold"`
	StarterPulse        string  `yaml:"starter_pulse"`
	DedupWindow         string  `yaml:"dedup_window"`
	CommandQoS          int     `yaml:"command_qos"`
	KeepAliveQoS        int     `yaml:"keep_alive_qos"`
	ShutdownQoS         *int    `yaml:"shutdown_qos"`
	Retain              bool    `yaml:"retain"`
	LockRelaysWhenArmed bool    `yaml:"lock_relays_when_armed"`
}

type TrackerConfig struct {
	HTTPAddr           string         `yaml:"http_addr"`
	Store              string         `yaml:"store"`
	Postgres           PostgresConfig `yaml:"postgres"`
	RateLimitPerMinute int            `yaml:"rate_limit_per_minute"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxConns int    `yaml:"max_conns"`
}

type LatestConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type ChimeConfig struct {
	Enabled    bool `yaml:"enabled"`
	SampleRate int  `yaml:"sample_rate"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "wss://broker.hivemq.com:8884/mqtt"
	}
	if c.MQTT.ClientIDPrefix == "" {
		c.MQTT.ClientIDPrefix = "DashboardClient_"
	}
	if c.MQTT.DataTopic == "" && c.MQTT.DeviceHash != "" {
		c.MQTT.DataTopic = c.MQTT.DeviceHash + "/data-gps"
	}
	if c.MQTT.CommandTopic == "" && c.MQTT.DeviceHash != "" {
		c.MQTT.CommandTopic = c.MQTT.DeviceHash + "/cmd-control"
	}
	if c.MQTT.ConnectTimeout == "" {
		c.MQTT.ConnectTimeout = "10s"
	}
	if c.MQTT.ReconnectPeriod == "" {
		c.MQTT.ReconnectPeriod = "5s"
	}
	if c.MQTT.KeepAlive == "" {
		c.MQTT.KeepAlive = "30s"
	}

	if c.Session.KeepAliveInterval == "" {
		c.Session.KeepAliveInterval = "10s"
	}
	if c.Session.CommandEncoding == "" {
		c.Session.CommandEncoding = "token"
	}
	if c.Session.VoltageThreshold == 0 {
		c.Session.VoltageThreshold = 5.0
	}
	if c.Session.StarterPulse == "" {
		c.Session.StarterPulse = "3s"
	}
	if c.Session.DedupWindow == "" {
		c.Session.DedupWindow = "300ms"
	}
	if c.Session.ShutdownQoS == nil {
		qos := 1
		c.Session.ShutdownQoS = &qos
	}

	if c.Tracker.HTTPAddr == "" {
		c.Tracker.HTTPAddr = ":8080"
	}
	if c.Tracker.Store == "" {
		c.Tracker.Store = "memory"
	}
	if c.Tracker.Postgres.Host == "" {
		c.Tracker.Postgres.Host = "localhost"
	}
	if c.Tracker.Postgres.Port == 0 {
		c.Tracker.Postgres.Port = 5432
	}
	if c.Tracker.Postgres.MaxConns == 0 {
		c.Tracker.Postgres.MaxConns = 4
	}
	if c.Tracker.RateLimitPerMinute == 0 {
		c.Tracker.RateLimitPerMinute = 60
	}

	if c.Latest.Backend == "" {
		c.Latest.Backend = "memory"
	}
	if c.Latest.Redis.Addr == "" {
		c.Latest.Redis.Addr = "localhost:6379"
	}
	if c.Latest.Redis.Key == "" {
		c.Latest.Redis.Key = "tracker:latest"
	}

	if c.Chime.SampleRate == 0 {
		c.Chime.SampleRate = 44100
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.MQTT.DataTopic == "" {
		errs = append(errs, errors.New("mqtt.data_topic or mqtt.device_hash is required"))
	}
	if c.MQTT.CommandTopic == "" {
		errs = append(errs, errors.New("mqtt.command_topic or mqtt.device_hash is required"))
	}

	for name, qos := range map[string]int{
		"mqtt.subscribe_qos":     c.MQTT.SubscribeQoS,
		"session.command_qos":    c.Session.CommandQoS,
		"session.keep_alive_qos": c.Session.KeepAliveQoS,
		"session.shutdown_qos":   *c.Session.ShutdownQoS,
	} {
		if qos < 0 || qos > 2 {
			errs = append(errs, fmt.Errorf("%s must be 0, 1 or 2, got %d", name, qos))
		}
	}

	switch c.Session.CommandEncoding {
	case "token", "object":
	default:
		errs = append(errs, fmt.Errorf("session.command_encoding must be token or object, got %q", c.Session.CommandEncoding))
	}
	switch c.Tracker.Store {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("tracker.store must be memory or postgres, got %q", c.Tracker.Store))
	}
	switch c.Latest.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("latest.backend must be memory or redis, got %q", c.Latest.Backend))
	}

	return errors.Join(errs...)
}

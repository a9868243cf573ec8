package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config holds all application configuration.
type Config struct {
	Huckleberry HuckleberryConfig `yaml:"huckleberry"`
	Poll        PollConfig        `yaml:"poll"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	HTTP        HTTPConfig        `yaml:"http"`
	Session     SessionConfig     `yaml:"session"`
	Log         LogConfig         `yaml:"log"`
}

// HuckleberryConfig holds Huckleberry cloud account and endpoint configuration.
type HuckleberryConfig struct {
	Email         string `yaml:"email" validate:"required,email"`
	Password      string `yaml:"password" validate:"required"`
	APIKey        string `yaml:"api_key" validate:"required"`
	ProjectID     string `yaml:"project_id" validate:"required"`
	AuthBase      string `yaml:"auth_base" validate:"required,url"`
	TokenBase     string `yaml:"token_base" validate:"required,url"`
	FirestoreBase string `yaml:"firestore_base" validate:"required,url"`
	Timezone      string `yaml:"timezone"`
}

// PollConfig holds the refresh schedule and query window.
type PollConfig struct {
	IntervalMinutes    int `yaml:"interval_minutes" validate:"gte=1"`
	WindowBackHours    int `yaml:"window_back_hours" validate:"gte=1"`
	WindowForwardHours int `yaml:"window_forward_hours" validate:"gte=0"`
}

// MQTTConfig holds MQTT broker configuration for Home Assistant discovery.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker" validate:"required_if=Enabled true"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix" validate:"required"`
	DeviceID    string `yaml:"device_id" validate:"required"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Addr    string `yaml:"addr" validate:"required"`
	CORSAll bool   `yaml:"cors_allow_all"`
}

// SessionConfig holds session file path configuration.
type SessionConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() Config {
	return Config{
		Huckleberry: HuckleberryConfig{
			ProjectID:     "huckleberry-app",
			AuthBase:      "https://identitytoolkit.googleapis.com/v1",
			TokenBase:     "https://securetoken.googleapis.com/v1",
			FirestoreBase: "https://firestore.googleapis.com/v1",
			Timezone:      "Local",
		},
		Poll: PollConfig{
			IntervalMinutes:    5,
			WindowBackHours:    24,
			WindowForwardHours: 24,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "huckleberry",
			DeviceID:    "huckleberry_bridge",
		},
		HTTP: HTTPConfig{
			Addr: ":8093",
		},
		Session: SessionConfig{
			Path: "/data/session.json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file at path, then overlays environment variables.
// If path is empty, only defaults + env vars are used.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
			// file not found is ok, use defaults
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// Validate checks field constraints and resolves the configured timezone.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone name.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Huckleberry.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Huckleberry.Timezone, err)
	}
	return loc, nil
}

// applyEnv overlays environment variables on top of the config.
// Env vars take precedence over YAML values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("HUCKLEBERRY_EMAIL"); v != "" {
		cfg.Huckleberry.Email = v
	}
	if v := os.Getenv("HUCKLEBERRY_PASSWORD"); v != "" {
		cfg.Huckleberry.Password = v
	}
	if v := os.Getenv("HUCKLEBERRY_API_KEY"); v != "" {
		cfg.Huckleberry.APIKey = v
	}
	if v := os.Getenv("HUCKLEBERRY_PROJECT_ID"); v != "" {
		cfg.Huckleberry.ProjectID = v
	}
	if v := os.Getenv("HUCKLEBERRY_AUTH_BASE"); v != "" {
		cfg.Huckleberry.AuthBase = v
	}
	if v := os.Getenv("HUCKLEBERRY_TOKEN_BASE"); v != "" {
		cfg.Huckleberry.TokenBase = v
	}
	if v := os.Getenv("HUCKLEBERRY_FIRESTORE_BASE"); v != "" {
		cfg.Huckleberry.FirestoreBase = v
	}
	if v := os.Getenv("HUCKLEBERRY_TIMEZONE"); v != "" {
		cfg.Huckleberry.Timezone = v
	}
	if v := os.Getenv("HUCKLEBERRY_POLL_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poll.IntervalMinutes = n
		}
	}
	if v := os.Getenv("HUCKLEBERRY_POLL_WINDOW_BACK_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poll.WindowBackHours = n
		}
	}
	if v := os.Getenv("HUCKLEBERRY_POLL_WINDOW_FORWARD_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poll.WindowForwardHours = n
		}
	}
	if v := os.Getenv("HUCKLEBERRY_MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = parseBool(v)
	}
	if v := os.Getenv("HUCKLEBERRY_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("HUCKLEBERRY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("HUCKLEBERRY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("HUCKLEBERRY_MQTT_TOPIC_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}
	if v := os.Getenv("HUCKLEBERRY_MQTT_DEVICE_ID"); v != "" {
		cfg.MQTT.DeviceID = v
	}
	if v := os.Getenv("HUCKLEBERRY_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("HUCKLEBERRY_CORS_ALLOW_ALL"); v != "" {
		cfg.HTTP.CORSAll = parseBool(v)
	}
	if v := os.Getenv("HUCKLEBERRY_SESSION_PATH"); v != "" {
		cfg.Session.Path = v
	}
	if v := os.Getenv("HUCKLEBERRY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HUCKLEBERRY_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	b, _ := strconv.ParseBool(s)
	return b
}

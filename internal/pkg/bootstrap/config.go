// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"vinheria/internal/pkg/logger"
)

// Config 两个服务共用，各自读取需要的部分
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	TLS       TLSConfig       `yaml:"tls"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       logger.Config   `yaml:"log"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Events    EventsConfig    `yaml:"events"`
	Inventory InventoryConfig `yaml:"inventory"`
	Sales     SalesConfig     `yaml:"sales"`
}

type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `yaml:"port"`
}

// TLSConfig 证书和私钥都配置时启用 HTTPS
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

func (t TLSConfig) Enabled() bool { return t.CertFile != "" || t.KeyFile != "" }

type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

type TracingConfig struct {
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

type EventsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig Brokers 非空时启用 Kafka 事件发送
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type InventoryConfig struct {
	Backend string         `yaml:"backend"` // memory | redis
	Redis   RedisConfig    `yaml:"redis"`
	Catalog map[string]int `yaml:"catalog"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type SalesConfig struct {
	InventoryURL       string        `yaml:"inventory_url"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// ConfigPath 返回 CONFIG_FILE 指定的 YAML 文件，可以为空
func ConfigPath() string {
	return getEnv("CONFIG_FILE", "")
}

// LoadConfig 按 默认值 -> YAML 文件(可选) -> 环境变量 的顺序叠加配置，最后做校验
func LoadConfig(path string, defaults Config) (*Config, error) {
	cfg := defaults
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := getEnv("PORT", ""); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid PORT %q", v)
		}
		cfg.Service.Port = port
	}
	cfg.Auth.Secret = getEnv("JWT_SECRET", cfg.Auth.Secret)
	cfg.TLS.CertFile = getEnv("TLS_CERT_FILE", cfg.TLS.CertFile)
	cfg.TLS.KeyFile = getEnv("TLS_KEY_FILE", cfg.TLS.KeyFile)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Tracing.JaegerEndpoint = getEnv("JAEGER_ENDPOINT", cfg.Tracing.JaegerEndpoint)
	cfg.Inventory.Backend = getEnv("INVENTORY_BACKEND", cfg.Inventory.Backend)
	cfg.Inventory.Redis.Addr = getEnv("REDIS_ADDR", cfg.Inventory.Redis.Addr)
	cfg.Sales.InventoryURL = getEnv("INVENTORY_URL", cfg.Sales.InventoryURL)
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		cfg.Events.Kafka.Brokers = strings.Split(v, ",")
	}
	cfg.Events.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Events.Kafka.Topic)
	return nil
}

// Validate 返回必须在启动时终止进程的配置错误
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return errors.New("service.name is required")
	}
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return errors.Errorf("service.port %d out of range", c.Service.Port)
	}
	if c.Auth.Secret == "" {
		return errors.New("auth.secret (JWT_SECRET) is required")
	}
	if c.TLS.Enabled() && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return errors.New("tls.cert_file and tls.key_file must be set together")
	}
	if len(c.Events.Kafka.Brokers) > 0 && c.Events.Kafka.Topic == "" {
		return errors.New("events.kafka.topic is required when brokers are set")
	}
	return nil
}

// getEnv 读取环境变量，不存在时返回默认值
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

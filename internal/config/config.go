package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig
	Databases   map[string]DatabaseConfig
	Mongo       MongoConfig
	Redis       RedisConfig
	VectorStore VectorStoreConfig
	Embedding   EmbeddingConfig
	Providers   map[string]ProviderConfig
	Security    SecurityConfig
}

type BasicConfig struct {
	ServerAddress      string
	DBDriver           string
	GenerationProvider string
	LogFile            string
	LogJSON            bool
	CORSOrigins        []string
}

// DatabaseConfig describes one SQL backend. DSN is used by sqlite, the rest by mysql.
type DatabaseConfig struct {
	DSN      string
	Host     string
	Port     int
	Username string
	Password string
	DBName   string
	Params   string
}

type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig is optional; an empty Host disables redis.
type RedisConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	DB       int
}

type VectorStoreConfig struct {
	Type       string
	URL        string
	APIKey     string
	Collection string
	Path       string
	TopK       int
	Timeout    time.Duration
}

type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type ProviderConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

type SecurityConfig struct {
	SecretKey    string
	PasswordSalt string
	SessionTTL   time.Duration
	CSRFEnabled  bool
}

const (
	DriverMongo  = "mongodb"
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// Load reads configuration from .env, the optional config file at path and the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ADDRESS", ":8000")
	v.SetDefault("DB_DRIVER", DriverMongo)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "ragchat")
	v.SetDefault("SQLITE_DSN", "file:ragchat.db?_foreign_keys=on")
	v.SetDefault("MYSQL_PORT", 3306)
	v.SetDefault("MYSQL_PARAMS", "parseTime=true&charset=utf8mb4")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("VECTOR_STORE", "qdrant")
	v.SetDefault("QDRANT_URL", "http://localhost:6333")
	v.SetDefault("QDRANT_TIMEOUT", "15s")
	v.SetDefault("COLLECTION_NAME", "documents")
	v.SetDefault("RETRIEVAL_TOP_K", 5)
	v.SetDefault("OPENAI_API_BASE", "https://api.openai.com/v1")
	v.SetDefault("EMBEDDING_MODEL", "text-embedding-3-small")
	v.SetDefault("GENERATION_PROVIDER", "openai")
	v.SetDefault("GENERATION_MODEL", "gpt-4o-mini")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("CSRF_ENABLED", false)
	v.SetDefault("LOG_FILE", "logs/backend.log")
	v.SetDefault("LOG_JSON", false)
	v.SetDefault("CORS_ORIGINS", "http://localhost:8080")
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		BasicConfig: BasicConfig{
			ServerAddress:      v.GetString("SERVER_ADDRESS"),
			DBDriver:           strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
			GenerationProvider: strings.ToLower(strings.TrimSpace(v.GetString("GENERATION_PROVIDER"))),
			LogFile:            v.GetString("LOG_FILE"),
			LogJSON:            v.GetBool("LOG_JSON"),
			CORSOrigins:        splitList(v.GetString("CORS_ORIGINS")),
		},
		Databases: map[string]DatabaseConfig{
			DriverSQLite: {DSN: v.GetString("SQLITE_DSN")},
			DriverMySQL: {
				Host:     v.GetString("MYSQL_HOST"),
				Port:     v.GetInt("MYSQL_PORT"),
				Username: v.GetString("MYSQL_USER"),
				Password: v.GetString("MYSQL_PASSWORD"),
				DBName:   v.GetString("MYSQL_DBNAME"),
				Params:   v.GetString("MYSQL_PARAMS"),
			},
		},
		Mongo: MongoConfig{
			URI:      v.GetString("MONGO_URI"),
			Database: v.GetString("MONGO_DATABASE"),
		},
		VectorStore: VectorStoreConfig{
			Type:       strings.ToLower(v.GetString("VECTOR_STORE")),
			URL:        strings.TrimRight(v.GetString("QDRANT_URL"), "/"),
			APIKey:     v.GetString("QDRANT_API_KEY"),
			Collection: v.GetString("COLLECTION_NAME"),
			Path:       v.GetString("VECTOR_STORE_PATH"),
			TopK:       v.GetInt("RETRIEVAL_TOP_K"),
			Timeout:    v.GetDuration("QDRANT_TIMEOUT"),
		},
		Embedding: EmbeddingConfig{
			BaseURL: v.GetString("OPENAI_API_BASE"),
			APIKey:  v.GetString("OPENAI_API_KEY"),
			Model:   v.GetString("EMBEDDING_MODEL"),
		},
		Providers: map[string]ProviderConfig{
			"openai": {
				BaseURL: v.GetString("OPENAI_API_BASE"),
				Model:   v.GetString("GENERATION_MODEL"),
				APIKey:  v.GetString("OPENAI_API_KEY"),
			},
			"claude": {
				BaseURL: v.GetString("ANTHROPIC_API_BASE"),
				Model:   v.GetString("GENERATION_MODEL"),
				APIKey:  v.GetString("ANTHROPIC_API_KEY"),
			},
			"gemini": {
				Model:  v.GetString("GENERATION_MODEL"),
				APIKey: v.GetString("GEMINI_API_KEY"),
			},
		},
		Security: SecurityConfig{
			SecretKey:    v.GetString("SECRET_KEY"),
			PasswordSalt: v.GetString("SECURITY_PASSWORD_SALT"),
			SessionTTL:   v.GetDuration("SESSION_TTL"),
			CSRFEnabled:  v.GetBool("CSRF_ENABLED"),
		},
	}
	if addr := strings.TrimSpace(v.GetString("REDIS_ADDR")); addr != "" {
		host, port := splitHostPort(addr, v.GetInt("REDIS_PORT"))
		cfg.Redis = RedisConfig{
			Host:     host,
			Port:     port,
			Username: v.GetString("REDIS_USERNAME"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		}
	}
	return cfg
}

func (c *Config) validate() error {
	if c.Security.SecretKey == "" {
		return errors.New("SECRET_KEY must be configured")
	}
	if c.Security.PasswordSalt == "" {
		return errors.New("SECURITY_PASSWORD_SALT must be configured")
	}
	switch c.BasicConfig.DBDriver {
	case DriverMongo:
		if c.Mongo.URI == "" {
			return errors.New("MONGO_URI must be configured")
		}
	case DriverSQLite, DriverMySQL:
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.BasicConfig.DBDriver)
	}
	if _, ok := c.Providers[c.BasicConfig.GenerationProvider]; !ok {
		return fmt.Errorf("unsupported GENERATION_PROVIDER: %s", c.BasicConfig.GenerationProvider)
	}
	if c.VectorStore.TopK <= 0 {
		c.VectorStore.TopK = 5
	}
	if c.Security.SessionTTL <= 0 {
		c.Security.SessionTTL = 24 * time.Hour
	}
	return nil
}

// GenerationProvider returns the settings of the configured chat model provider.
func (c *Config) GenerationProvider() (string, ProviderConfig) {
	name := c.BasicConfig.GenerationProvider
	return name, c.Providers[name]
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitHostPort(addr string, defPort int) (string, int) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, defPort
	}
	var port int
	if _, err := fmt.Sscanf(addr[idx+1:], "%d", &port); err != nil || port <= 0 {
		return addr[:idx], defPort
	}
	return addr[:idx], port
}

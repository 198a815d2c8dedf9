package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config captures all runtime configuration derived from environment variables
// and an optional YAML file.
type Config struct {
	Port             string `yaml:"port"`
	ReadTimeoutSecs  int    `yaml:"readTimeoutSecs"`
	WriteTimeoutSecs int    `yaml:"writeTimeoutSecs"`
	IdleTimeoutSecs  int    `yaml:"idleTimeoutSecs"`
	LogLevel         string `yaml:"logLevel"`
	LogFormat        string `yaml:"logFormat"`

	DBURL             string `yaml:"dbURL"`
	DBMaxConns        int    `yaml:"dbMaxConns"`
	DBMinConns        int    `yaml:"dbMinConns"`
	DBMaxIdleSecs     int    `yaml:"dbMaxConnIdleSecs"`
	DBMaxLifeSecs     int    `yaml:"dbMaxConnLifetimeSecs"`
	DBConnTimeoutSecs int    `yaml:"dbConnTimeoutSecs"`
	DBStatementCache  int    `yaml:"dbStatementCacheCapacity"`
	DBSlowQueryMillis int    `yaml:"dbSlowQueryMillis"`
	// DBMigrationsDir, when set, is applied at startup.
	DBMigrationsDir string `yaml:"dbMigrationsDir"`

	SupabaseURL         string `yaml:"supabaseURL"`
	SupabaseServiceKey  string `yaml:"supabaseServiceRoleKey"`
	SupabaseJWTSecret   string `yaml:"supabaseJWTSecret"`
	IdentityTimeoutSecs int    `yaml:"identityTimeoutSecs"`

	ObjectStoreEndpoint  string `yaml:"objectStoreEndpoint"`
	ObjectStoreAccessKey string `yaml:"objectStoreAccessKey"`
	ObjectStoreSecretKey string `yaml:"objectStoreSecretKey"`
	ObjectStoreBucket    string `yaml:"objectStoreBucket"`
	ObjectStoreUseSSL    bool   `yaml:"objectStoreUseSSL"`
	ObjectStorePublicURL string `yaml:"objectStorePublicURL"`
	StorageTimeoutSecs   int    `yaml:"storageTimeoutSecs"`
	MaxUploadBytes       int64  `yaml:"maxUploadBytes"`

	GeminiAPIKey      string `yaml:"geminiAPIKey"`
	GeminiBaseURL     string `yaml:"geminiBaseURL"`
	GeminiModel       string `yaml:"geminiModel"`
	GeminiTimeoutSecs int    `yaml:"geminiTimeoutSecs"`

	RedisAddr            string `yaml:"redisAddr"`
	RedisPassword        string `yaml:"redisPassword"`
	AIRateLimitPerMinute int    `yaml:"aiRateLimitPerMinute"`

	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins"`
	// TrustedProxies lists the peers (CIDR or bare IP) whose forwarded-for
	// headers name the real client. Empty means the socket peer is the client.
	TrustedProxies []string `yaml:"trustedProxies"`
}

func defaults() Config {
	return Config{
		Port:                 "8080",
		ReadTimeoutSecs:      15,
		WriteTimeoutSecs:     60,
		IdleTimeoutSecs:      60,
		LogLevel:             "info",
		LogFormat:            "json",
		DBMaxConns:           20,
		DBMinConns:           2,
		DBMaxIdleSecs:        300,
		DBMaxLifeSecs:        3600,
		DBConnTimeoutSecs:    10,
		DBStatementCache:     256,
		DBSlowQueryMillis:    500,
		IdentityTimeoutSecs:  5,
		ObjectStoreBucket:    "studyshare-notes",
		ObjectStoreUseSSL:    true,
		StorageTimeoutSecs:   30,
		MaxUploadBytes:       50 << 20,
		GeminiBaseURL:        "https://generativelanguage.googleapis.com/v1beta",
		GeminiModel:          "gemini-1.5-flash",
		GeminiTimeoutSecs:    20,
		AIRateLimitPerMinute: 10,
		CORSAllowedOrigins:   []string{"*"},
	}
}

// Load reads configuration from the YAML file named by CONFIG_FILE (if any),
// then environment variables, applying defaults and validation. Environment
// values win over file values.
func Load() (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.ReadTimeoutSecs = getEnvInt("SERVER_READ_TIMEOUT", cfg.ReadTimeoutSecs)
	cfg.WriteTimeoutSecs = getEnvInt("SERVER_WRITE_TIMEOUT", cfg.WriteTimeoutSecs)
	cfg.IdleTimeoutSecs = getEnvInt("SERVER_IDLE_TIMEOUT", cfg.IdleTimeoutSecs)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	cfg.DBURL = getEnv("DB_URL", cfg.DBURL)
	cfg.DBMaxConns = getEnvInt("DB_MAX_CONNS", cfg.DBMaxConns)
	cfg.DBMinConns = getEnvInt("DB_MIN_CONNS", cfg.DBMinConns)
	cfg.DBMaxIdleSecs = getEnvInt("DB_MAX_CONN_IDLE_SECS", cfg.DBMaxIdleSecs)
	cfg.DBMaxLifeSecs = getEnvInt("DB_MAX_CONN_LIFETIME_SECS", cfg.DBMaxLifeSecs)
	cfg.DBConnTimeoutSecs = getEnvInt("DB_CONN_TIMEOUT_SECS", cfg.DBConnTimeoutSecs)
	cfg.DBStatementCache = getEnvInt("DB_STATEMENT_CACHE_CAPACITY", cfg.DBStatementCache)
	cfg.DBSlowQueryMillis = getEnvInt("DB_SLOW_QUERY_MS", cfg.DBSlowQueryMillis)
	cfg.DBMigrationsDir = getEnv("DB_MIGRATIONS_DIR", cfg.DBMigrationsDir)

	cfg.SupabaseURL = getEnv("SUPABASE_URL", cfg.SupabaseURL)
	cfg.SupabaseServiceKey = getEnv("SUPABASE_SERVICE_ROLE_KEY", cfg.SupabaseServiceKey)
	cfg.SupabaseJWTSecret = getEnv("SUPABASE_JWT_SECRET", cfg.SupabaseJWTSecret)
	cfg.IdentityTimeoutSecs = getEnvInt("IDENTITY_TIMEOUT_SECS", cfg.IdentityTimeoutSecs)

	cfg.ObjectStoreEndpoint = getEnv("OBJECT_STORE_ENDPOINT", cfg.ObjectStoreEndpoint)
	cfg.ObjectStoreAccessKey = getEnv("OBJECT_STORE_ACCESS_KEY", cfg.ObjectStoreAccessKey)
	cfg.ObjectStoreSecretKey = getEnv("OBJECT_STORE_SECRET_KEY", cfg.ObjectStoreSecretKey)
	cfg.ObjectStoreBucket = getEnv("OBJECT_STORE_BUCKET", cfg.ObjectStoreBucket)
	cfg.ObjectStoreUseSSL = getEnvBool("OBJECT_STORE_USE_SSL", cfg.ObjectStoreUseSSL)
	cfg.ObjectStorePublicURL = getEnv("OBJECT_STORE_PUBLIC_URL", cfg.ObjectStorePublicURL)
	cfg.StorageTimeoutSecs = getEnvInt("STORAGE_TIMEOUT_SECS", cfg.StorageTimeoutSecs)
	cfg.MaxUploadBytes = getEnvInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)

	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.GeminiBaseURL = getEnv("GEMINI_BASE_URL", cfg.GeminiBaseURL)
	cfg.GeminiModel = getEnv("GEMINI_MODEL", cfg.GeminiModel)
	cfg.GeminiTimeoutSecs = getEnvInt("GEMINI_TIMEOUT_SECS", cfg.GeminiTimeoutSecs)

	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.AIRateLimitPerMinute = getEnvInt("AI_RATE_LIMIT_PER_MINUTE", cfg.AIRateLimitPerMinute)

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"DB_URL", cfg.DBURL},
		{"SUPABASE_URL", cfg.SupabaseURL},
		{"SUPABASE_SERVICE_ROLE_KEY", cfg.SupabaseServiceKey},
		{"OBJECT_STORE_ENDPOINT", cfg.ObjectStoreEndpoint},
		{"OBJECT_STORE_ACCESS_KEY", cfg.ObjectStoreAccessKey},
		{"OBJECT_STORE_SECRET_KEY", cfg.ObjectStoreSecretKey},
		{"GEMINI_API_KEY", cfg.GeminiAPIKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if strings.TrimSpace(cfg.ObjectStoreBucket) == "" {
		return fmt.Errorf("OBJECT_STORE_BUCKET must not be empty")
	}
	if cfg.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if cfg.GeminiTimeoutSecs <= 0 {
		return fmt.Errorf("GEMINI_TIMEOUT_SECS must be positive")
	}
	if cfg.StorageTimeoutSecs <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT_SECS must be positive")
	}
	if cfg.IdentityTimeoutSecs <= 0 {
		return fmt.Errorf("IDENTITY_TIMEOUT_SECS must be positive")
	}
	if cfg.AIRateLimitPerMinute < 0 {
		return fmt.Errorf("AI_RATE_LIMIT_PER_MINUTE must be non-negative")
	}
	if cfg.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if cfg.DBSlowQueryMillis < 0 {
		return fmt.Errorf("DB_SLOW_QUERY_MS must be non-negative")
	}
	if _, err := ParseProxyPrefixes(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	return nil
}

// ParseProxyPrefixes turns CIDR or bare-IP entries into prefixes. A bare IP
// becomes a single-address prefix.
func ParseProxyPrefixes(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy range %q", raw)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy address %q", raw)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Пакет config — загрузка и валидация конфигурации File Vault
// из переменных окружения (и необязательного .env файла).
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды хранилища объектов.
const (
	StoreBackendFS = "fs"
	StoreBackendS3 = "s3"
)

// Бэкенды счётчиков rate limiting.
const (
	RateBackendMemory = "memory"
	RateBackendRedis  = "redis"
)

// Config содержит все параметры конфигурации File Vault.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration
	// TLS сертификат и ключ (пустые — plain HTTP)
	TLSCert string
	TLSKey  string
	// Идентификатор экземпляра (пишется в origin_server)
	ServerID string

	// --- Логирование ---

	LogLevel  slog.Level
	LogFormat string
	// Диагностический режим: 500-ответы содержат полную цепочку ошибки.
	// Только для тестовых окружений.
	DebugErrors bool

	// --- Хранилище объектов ---

	StoreBackend string
	DataDir      string
	S3Endpoint   string
	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3UseSSL     bool

	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64
	// Ключ шифрования (32 байта, декодированный из base64)
	EncryptionKey []byte

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// --- Аутентификация ---

	// Секрет HS256 для токенов, выдаваемых /token
	JWTSecret string
	// Время жизни выдаваемого токена
	JWTTTL time.Duration
	// Издатель (iss) выдаваемых токенов
	JWTIssuer string
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// URL JWKS внешнего IdP (опционально, RS256)
	JWKSURL string
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Учётные данные login-заглушки
	LoginUser         string
	LoginPassword     string
	LoginPasswordHash string

	// --- Rate limiting ---

	RateBackend   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RateWindow    time.Duration
	RateUpload    int
	RateRead      int
	RateUpdate    int
	RateDelete    int
	RateLogin     int

	// --- Кэш метаданных ---

	CacheSize int
	CacheTTL  time.Duration

	// --- Сверка хранилища с каталогом ---

	// Интервал фоновой сверки (0 — только по запросу)
	ReconcileInterval time.Duration
	// Минимальный возраст объекта без записи каталога, после которого он считается осиротевшим
	ReconcileGrace time.Duration
	// Удалять осиротевшие объекты
	ReconcileRepair bool
	// Расшифровывать объекты и сверять хэш
	ReconcileVerify bool

	// --- topologymetrics ---

	DephealthEnabled       bool
	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Перед разбором подгружается .env (FV_ENV_FILE), уже заданные переменные не перезаписываются.
//
//nolint:cyclop,funlen // линейный разбор переменных
func Load() (*Config, error) {
	if err := loadEnvFile(getEnvDefault("FV_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("FV_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("FV_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FV_PORT: значение %d вне диапазона 1-65535", cfg.Port)
	}

	if cfg.HTTPReadTimeout, err = getEnvDuration("FV_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("FV_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("FV_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("FV_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("FV_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("FV_HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("FV_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("FV_SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg.TLSCert = getEnvDefault("FV_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("FV_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("FV_TLS_CERT и FV_TLS_KEY должны задаваться вместе")
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "localhost"
	}
	cfg.ServerID = getEnvDefault("FV_SERVER_ID", hostname)

	// --- Логирование ---

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FV_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FV_LOG_LEVEL: %w", err)
	}
	cfg.LogFormat = getEnvDefault("FV_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FV_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}
	if cfg.DebugErrors, err = getEnvBool("FV_DEBUG_ERRORS", false); err != nil {
		return nil, fmt.Errorf("FV_DEBUG_ERRORS: %w", err)
	}

	// --- Хранилище объектов ---

	if err := loadStore(cfg); err != nil {
		return nil, err
	}

	cfg.MaxFileSize, err = getEnvInt64("FV_MAX_FILE_SIZE", 50<<20)
	if err != nil {
		return nil, fmt.Errorf("FV_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("FV_MAX_FILE_SIZE: значение должно быть положительным")
	}

	rawKey, err := getEnvRequired("FV_ENCRYPTION_KEY")
	if err != nil {
		return nil, err
	}
	cfg.EncryptionKey, err = base64.StdEncoding.DecodeString(rawKey)
	if err != nil {
		return nil, fmt.Errorf("FV_ENCRYPTION_KEY: некорректный base64: %w", err)
	}
	if len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("FV_ENCRYPTION_KEY: ожидается 32 байта, получено %d", len(cfg.EncryptionKey))
	}

	// --- PostgreSQL ---

	cfg.DBHost = getEnvDefault("FV_DB_HOST", "localhost")
	if cfg.DBPort, err = getEnvInt("FV_DB_PORT", 5432); err != nil {
		return nil, fmt.Errorf("FV_DB_PORT: %w", err)
	}
	cfg.DBName = getEnvDefault("FV_DB_NAME", "filevault")
	cfg.DBUser = getEnvDefault("FV_DB_USER", "filevault")
	if cfg.DBPassword, err = getEnvRequired("FV_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("FV_DB_SSL_MODE", "disable")

	// --- Аутентификация ---

	if err := loadAuth(cfg); err != nil {
		return nil, err
	}

	// --- Rate limiting ---

	if err := loadRateLimits(cfg); err != nil {
		return nil, err
	}

	// --- Кэш ---

	if cfg.CacheSize, err = getEnvInt("FV_CACHE_SIZE", 1000); err != nil {
		return nil, fmt.Errorf("FV_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("FV_CACHE_SIZE: значение должно быть положительным")
	}
	if cfg.CacheTTL, err = getEnvDuration("FV_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("FV_CACHE_TTL: %w", err)
	}

	// --- Сверка ---

	if cfg.ReconcileInterval, err = getEnvDuration("FV_RECONCILE_INTERVAL", 0); err != nil {
		return nil, fmt.Errorf("FV_RECONCILE_INTERVAL: %w", err)
	}
	if cfg.ReconcileInterval < 0 {
		return nil, fmt.Errorf("FV_RECONCILE_INTERVAL: значение не может быть отрицательным")
	}
	if cfg.ReconcileGrace, err = getEnvDuration("FV_RECONCILE_GRACE", time.Hour); err != nil {
		return nil, fmt.Errorf("FV_RECONCILE_GRACE: %w", err)
	}
	if cfg.ReconcileRepair, err = getEnvBool("FV_RECONCILE_REPAIR", false); err != nil {
		return nil, fmt.Errorf("FV_RECONCILE_REPAIR: %w", err)
	}
	if cfg.ReconcileVerify, err = getEnvBool("FV_RECONCILE_VERIFY", false); err != nil {
		return nil, fmt.Errorf("FV_RECONCILE_VERIFY: %w", err)
	}

	// --- topologymetrics ---

	if cfg.DephealthEnabled, err = getEnvBool("FV_DEPHEALTH_ENABLED", true); err != nil {
		return nil, fmt.Errorf("FV_DEPHEALTH_ENABLED: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("FV_DEPHEALTH_GROUP", "filevault")
	if cfg.DephealthCheckInterval, err = getEnvDuration("FV_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("FV_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// loadStore разбирает параметры хранилища объектов.
func loadStore(cfg *Config) error {
	var err error

	cfg.StoreBackend = getEnvDefault("FV_STORE_BACKEND", StoreBackendFS)
	switch cfg.StoreBackend {
	case StoreBackendFS:
		cfg.DataDir, err = getEnvRequired("FV_DATA_DIR")
		if err != nil {
			return err
		}
	case StoreBackendS3:
		for key, dst := range map[string]*string{
			"FV_S3_ENDPOINT":   &cfg.S3Endpoint,
			"FV_S3_BUCKET":     &cfg.S3Bucket,
			"FV_S3_ACCESS_KEY": &cfg.S3AccessKey,
			"FV_S3_SECRET_KEY": &cfg.S3SecretKey,
		} {
			if *dst, err = getEnvRequired(key); err != nil {
				return err
			}
		}
		cfg.S3Region = getEnvDefault("FV_S3_REGION", "us-east-1")
		if cfg.S3UseSSL, err = getEnvBool("FV_S3_USE_SSL", false); err != nil {
			return fmt.Errorf("FV_S3_USE_SSL: %w", err)
		}
	default:
		return fmt.Errorf("FV_STORE_BACKEND: недопустимое значение %q, допустимые: fs, s3", cfg.StoreBackend)
	}
	return nil
}

// loadAuth разбирает параметры JWT и login-заглушки.
func loadAuth(cfg *Config) error {
	var err error

	if cfg.JWTSecret, err = getEnvRequired("FV_JWT_SECRET"); err != nil {
		return err
	}
	if len(cfg.JWTSecret) < 16 {
		return fmt.Errorf("FV_JWT_SECRET: секрет должен быть не короче 16 символов")
	}
	if cfg.JWTTTL, err = getEnvDuration("FV_JWT_TTL", time.Hour); err != nil {
		return fmt.Errorf("FV_JWT_TTL: %w", err)
	}
	cfg.JWTIssuer = getEnvDefault("FV_JWT_ISSUER", "filevault")
	if cfg.JWTLeeway, err = getEnvDuration("FV_JWT_LEEWAY", 5*time.Second); err != nil {
		return fmt.Errorf("FV_JWT_LEEWAY: %w", err)
	}

	cfg.JWKSURL = getEnvDefault("FV_JWKS_URL", "")
	if cfg.JWKSURL != "" {
		if _, err := url.ParseRequestURI(cfg.JWKSURL); err != nil {
			return fmt.Errorf("FV_JWKS_URL: некорректный URL: %w", err)
		}
	}
	if cfg.JWKSRefreshInterval, err = getEnvDuration("FV_JWKS_REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return fmt.Errorf("FV_JWKS_REFRESH_INTERVAL: %w", err)
	}

	cfg.LoginUser = getEnvDefault("FV_LOGIN_USER", "test")
	cfg.LoginPassword = getEnvDefault("FV_LOGIN_PASSWORD", "test")
	cfg.LoginPasswordHash = getEnvDefault("FV_LOGIN_PASSWORD_HASH", "")
	return nil
}

// loadRateLimits разбирает бэкенд и потолки rate limiting.
func loadRateLimits(cfg *Config) error {
	var err error

	cfg.RateBackend = getEnvDefault("FV_RATE_BACKEND", RateBackendMemory)
	if cfg.RateBackend != RateBackendMemory && cfg.RateBackend != RateBackendRedis {
		return fmt.Errorf("FV_RATE_BACKEND: недопустимое значение %q, допустимые: memory, redis", cfg.RateBackend)
	}
	cfg.RedisAddr = getEnvDefault("FV_REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnvDefault("FV_REDIS_PASSWORD", "")
	if cfg.RedisDB, err = getEnvInt("FV_REDIS_DB", 0); err != nil {
		return fmt.Errorf("FV_REDIS_DB: %w", err)
	}

	if cfg.RateWindow, err = getEnvDuration("FV_RATE_WINDOW", time.Minute); err != nil {
		return fmt.Errorf("FV_RATE_WINDOW: %w", err)
	}
	if cfg.RateWindow <= 0 {
		return fmt.Errorf("FV_RATE_WINDOW: значение должно быть положительным")
	}

	limits := []struct {
		key string
		def int
		dst *int
	}{
		{"FV_RATE_UPLOAD", 10, &cfg.RateUpload},
		{"FV_RATE_READ", 30, &cfg.RateRead},
		{"FV_RATE_UPDATE", 20, &cfg.RateUpdate},
		{"FV_RATE_DELETE", 10, &cfg.RateDelete},
		{"FV_RATE_LOGIN", 20, &cfg.RateLogin},
	}
	for _, l := range limits {
		n, err := getEnvInt(l.key, l.def)
		if err != nil {
			return fmt.Errorf("%s: %w", l.key, err)
		}
		if n <= 0 {
			return fmt.Errorf("%s: значение должно быть положительным", l.key)
		}
		*l.dst = n
	}
	return nil
}

// DatabaseDSN возвращает строку подключения для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.DBUser), url.QueryEscape(c.DBPassword), c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для меток метрик и логов).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.DBUser), url.QueryEscape(c.DBPassword), c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// loadEnvFile подгружает .env файл, если он существует.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("ошибка чтения %s: %w", path, err)
	}
	return nil
}

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает bool значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1m, 1h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

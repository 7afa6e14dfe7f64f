package config

import (
	"fmt"
	"strings"
	"time"

	"storybook-server/internal/logger"
	"storybook-server/internal/utils"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Допустимые значения переключателей бэкендов.
const (
	TextClientOpenAI = "openai"
	TextClientOllama = "ollama"
	TextClientGemini = "gemini"

	ImageClientHTTP   = "http"
	ImageClientOpenAI = "openai"
	ImageClientGemini = "gemini"

	StorageLocal    = "local"
	StorageFirebase = "firebase"

	RepositoryPostgres = "postgres"
	RepositoryMongo    = "mongo"

	QuotaMemory = "memory"
	QuotaRedis  = "redis"

	ImagePolicyRetry       = "retry"
	ImagePolicyPlaceholder = "placeholder"
)

// Config содержит конфигурацию сервиса генерации историй.
type Config struct {
	Env                string `envconfig:"ENV" default:"development"`
	HTTPServerPort     string `envconfig:"HTTP_SERVER_PORT" default:"8080"`
	LogLevel           string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding        string `envconfig:"LOG_ENCODING" default:"json"`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
	// Лимит запросов с одного IP в минуту для эндпоинтов сессий
	HTTPRateLimitPerMinute uint `envconfig:"HTTP_RATE_LIMIT_PER_MINUTE" default:"120"`
	// Секретное поле БЕЗ envconfig тега
	JWTSecret string `ignored:"true"`

	// Текстовая модель
	TextClientType  string        `envconfig:"TEXT_CLIENT_TYPE" default:"openai"`
	AIBaseURL       string        `envconfig:"AI_BASE_URL" default:"https://openrouter.ai/api/v1"`
	AIModel         string        `envconfig:"AI_MODEL" default:"openai/gpt-4o-mini"`
	TextTimeout     time.Duration `envconfig:"TEXT_TIMEOUT" default:"60s"`
	TextTemperature float64       `envconfig:"TEXT_TEMPERATURE" default:"0.8"`
	TextMaxTokens   int           `envconfig:"TEXT_MAX_TOKENS" default:"400"`
	AIAPIKey        string        `ignored:"true"`

	// Графическая модель
	ImageClientType string        `envconfig:"IMAGE_CLIENT_TYPE" default:"http"`
	ImageServerURL  string        `envconfig:"IMAGE_SERVER_URL" default:"http://localhost:8000"`
	ImageModel      string        `envconfig:"IMAGE_MODEL" default:"dall-e-3"`
	ImageRatio      string        `envconfig:"IMAGE_RATIO" default:"3:2"`
	ImageTimeout    time.Duration `envconfig:"IMAGE_TIMEOUT" default:"120s"`

	// Пайплайн
	PromptStyleSuffix           string        `envconfig:"PROMPT_STYLE_SUFFIX" default:"in the style of a gentle watercolor picture book"`
	ImageFailurePolicy          string        `envconfig:"IMAGE_FAILURE_POLICY" default:"retry"`
	PlaceholderImageURL         string        `envconfig:"PLACEHOLDER_IMAGE_URL" default:"https://storage.googleapis.com/storybook-public/placeholder.jpg"`
	RequireSummaryBeforePersist bool          `envconfig:"REQUIRE_SUMMARY_BEFORE_PERSIST" default:"true"`
	SummaryTimeout              time.Duration `envconfig:"SUMMARY_TIMEOUT" default:"60s"`

	// Объектное хранилище
	StorageBackend          string        `envconfig:"STORAGE_BACKEND" default:"local"`
	StorageLocalPath        string        `envconfig:"STORAGE_LOCAL_PATH" default:"/data/images"`
	StoragePublicBaseURL    string        `envconfig:"STORAGE_PUBLIC_BASE_URL" default:"http://localhost:8080/images"`
	StoragePathPrefix       string        `envconfig:"STORAGE_PATH_PREFIX" default:"story_images"`
	FirebaseCredentialsPath string        `envconfig:"FIREBASE_CREDENTIALS_PATH" default:""`
	FirebaseStorageBucket   string        `envconfig:"FIREBASE_STORAGE_BUCKET" default:""`
	UploadConcurrency       int           `envconfig:"UPLOAD_CONCURRENCY" default:"4"`
	UploadTimeout           time.Duration `envconfig:"UPLOAD_TIMEOUT" default:"30s"`

	// Хранилище историй
	RepositoryBackend string        `envconfig:"REPOSITORY_BACKEND" default:"postgres"`
	DBHost            string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort            string        `envconfig:"DB_PORT" default:"5432"`
	DBUser            string        `envconfig:"DB_USER" default:"postgres"`
	DBName            string        `envconfig:"DB_NAME" default:"storybook_db"`
	DBSSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns        int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout     time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	DBPassword        string        `ignored:"true"`
	MongoURI          string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase     string        `envconfig:"MONGO_DATABASE" default:"storybook"`

	// Квоты генерации
	QuotaBackend   string `envconfig:"QUOTA_BACKEND" default:"memory"`
	QuotaPerMinute int    `envconfig:"QUOTA_PER_MINUTE" default:"10"`
	QuotaPerDay    int    `envconfig:"QUOTA_PER_DAY" default:"200"`
	RedisAddr      string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string `ignored:"true"`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`

	// RabbitMQ
	RabbitMQURL     string `envconfig:"RABBITMQ_URL" default:""`
	ReviewQueueName string `envconfig:"REVIEW_QUEUE_NAME" default:"story_review"`

	// Сессии
	SessionTTL             time.Duration `envconfig:"SESSION_TTL" default:"2h"`
	SessionMax             int           `envconfig:"SESSION_MAX" default:"1000"`
	SessionCleanupInterval time.Duration `envconfig:"SESSION_CLEANUP_INTERVAL" default:"5m"`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoggerConfig возвращает настройки логгера.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.LogLevel, Encoding: c.LogEncoding}
}

// GetAllowedOrigins разбирает CORS_ALLOWED_ORIGINS.
func (c *Config) GetAllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// LoadConfig загружает конфигурацию из .env (если есть), переменных окружения и секретов.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	var err error
	cfg.JWTSecret, err = utils.ReadSecretOrEnv("jwt_secret", "JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if cfg.TextClientType != TextClientOllama || cfg.ImageClientType != ImageClientHTTP {
		cfg.AIAPIKey, err = utils.ReadSecretOrEnv("ai_api_key", "AI_API_KEY")
		if err != nil {
			return nil, err
		}
	}
	if cfg.RepositoryBackend == RepositoryPostgres {
		cfg.DBPassword, err = utils.ReadSecretOrEnv("db_password", "DB_PASSWORD")
		if err != nil {
			return nil, err
		}
	}
	// Пароль Redis не обязателен
	cfg.RedisPassword, _ = utils.ReadSecretOrEnv("redis_password", "REDIS_PASSWORD")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения переключателей.
func (c *Config) Validate() error {
	checks := []struct {
		key     string
		value   string
		allowed []string
	}{
		{"TEXT_CLIENT_TYPE", c.TextClientType, []string{TextClientOpenAI, TextClientOllama, TextClientGemini}},
		{"IMAGE_CLIENT_TYPE", c.ImageClientType, []string{ImageClientHTTP, ImageClientOpenAI, ImageClientGemini}},
		{"STORAGE_BACKEND", c.StorageBackend, []string{StorageLocal, StorageFirebase}},
		{"REPOSITORY_BACKEND", c.RepositoryBackend, []string{RepositoryPostgres, RepositoryMongo}},
		{"QUOTA_BACKEND", c.QuotaBackend, []string{QuotaMemory, QuotaRedis}},
		{"IMAGE_FAILURE_POLICY", c.ImageFailurePolicy, []string{ImagePolicyRetry, ImagePolicyPlaceholder}},
	}
	for _, ch := range checks {
		if !oneOf(ch.value, ch.allowed) {
			return fmt.Errorf("invalid %s=%q, allowed: %s", ch.key, ch.value, strings.Join(ch.allowed, ", "))
		}
	}
	if c.StorageBackend == StorageFirebase && c.FirebaseStorageBucket == "" {
		return fmt.Errorf("FIREBASE_STORAGE_BUCKET is required for firebase storage")
	}
	if c.UploadConcurrency < 1 {
		return fmt.Errorf("UPLOAD_CONCURRENCY must be positive, got %d", c.UploadConcurrency)
	}
	return nil
}

// LogFields возвращает поля для логирования конфигурации без секретов.
func (c *Config) LogFields() []zap.Field {
	fields := []zap.Field{
		zap.String("env", c.Env),
		zap.String("port", c.HTTPServerPort),
		zap.String("text_client", c.TextClientType),
		zap.String("ai_base_url", c.AIBaseURL),
		zap.String("ai_model", c.AIModel),
		zap.Duration("text_timeout", c.TextTimeout),
		zap.String("image_client", c.ImageClientType),
		zap.Duration("image_timeout", c.ImageTimeout),
		zap.String("image_failure_policy", c.ImageFailurePolicy),
		zap.Bool("require_summary", c.RequireSummaryBeforePersist),
		zap.String("storage_backend", c.StorageBackend),
		zap.String("repository_backend", c.RepositoryBackend),
		zap.String("quota_backend", c.QuotaBackend),
		zap.Duration("session_ttl", c.SessionTTL),
	}
	if c.RepositoryBackend == RepositoryPostgres {
		fields = append(fields, zap.String("db_dsn", c.getMaskedDSN()))
	}
	return fields
}

// getMaskedDSN возвращает DSN с замаскированным паролем для логирования
func (c *Config) getMaskedDSN() string {
	dsn := c.GetDSN()
	parts := strings.Split(dsn, "@")
	if len(parts) != 2 {
		return "[invalid dsn format]"
	}
	userInfo := strings.Split(parts[0], ":")
	if len(userInfo) >= 2 {
		userInfo[len(userInfo)-1] = "********"
	}
	return strings.Join(userInfo, ":") + "@" + parts[1]
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

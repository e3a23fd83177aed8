package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	AMQPURL              string `yaml:"amqpURL"`
	NotificationExchange string `yaml:"notificationExchange"`

	EmbedServiceURL  string `yaml:"embedServiceURL"`
	EmbedModel       string `yaml:"embedModel"`
	EmbedDimensions  int    `yaml:"embedDimensions"`
	VisionServiceURL string `yaml:"visionServiceURL"`

	RazorpayKeyID         string `yaml:"razorpayKeyID"`
	RazorpayKeySecret     string `yaml:"razorpayKeySecret"`
	RazorpayWebhookSecret string `yaml:"razorpayWebhookSecret"`

	SMTPHost     string `yaml:"smtpHost"`
	SMTPPort     int    `yaml:"smtpPort"`
	SMTPUsername string `yaml:"smtpUsername"`
	SMTPPassword string `yaml:"smtpPassword"`
	SMTPFrom     string `yaml:"smtpFrom"`

	JWTSecret      string `yaml:"jwtSecret"`
	AccessTokenTTL string `yaml:"accessTokenTTL"`

	TrustedProxyCIDRs       []string `yaml:"trustedProxyCidrs"`
	LoginRateLimitPerMinute int      `yaml:"loginRateLimitPerMinute"`
	OTPRateLimitPerMinute   int      `yaml:"otpRateLimitPerMinute"`
	ChatRateLimitPerMinute  int      `yaml:"chatRateLimitPerMinute"`

	MaxUploadBytes    int64    `yaml:"maxUploadBytes"`
	AllowedExtensions []string `yaml:"allowedExtensions"`

	ModelPath         string `yaml:"modelPath"`
	WorkerConcurrency int    `yaml:"workerConcurrency"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("EMBED_SERVICE_URL"); v != "" {
		cfg.EmbedServiceURL = v
	}
	if v := os.Getenv("EMBED_MODEL"); v != "" {
		cfg.EmbedModel = v
	}
	if v := os.Getenv("EMBED_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EmbedDimensions = n
		}
	}
	if v := os.Getenv("VISION_SERVICE_URL"); v != "" {
		cfg.VisionServiceURL = v
	}
	if v := os.Getenv("RAZORPAY_KEY_ID"); v != "" {
		cfg.RazorpayKeyID = v
	}
	if v := os.Getenv("RAZORPAY_KEY_SECRET"); v != "" {
		cfg.RazorpayKeySecret = v
	}
	if v := os.Getenv("RAZORPAY_WEBHOOK_SECRET"); v != "" {
		cfg.RazorpayWebhookSecret = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SMTPPort = n
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.SMTPUsername = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.SMTPPassword = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.SMTPFrom = v
	}
	if v := os.Getenv("BIBLIOTRACK_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("BIBLIOTRACK_ACCESS_TOKEN_TTL"); v != "" {
		cfg.AccessTokenTTL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BIBLIOTRACK_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("BIBLIOTRACK_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("BIBLIOTRACK_OTP_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OTPRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("BIBLIOTRACK_CHAT_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChatRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("BIBLIOTRACK_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("BIBLIOTRACK_ALLOWED_EXTENSIONS"); v != "" {
		cfg.AllowedExtensions = splitCSV(v)
	}
	if v := os.Getenv("BIBLIOTRACK_MODEL_PATH"); v != "" {
		cfg.ModelPath = v
	}
	if v := os.Getenv("BIBLIOTRACK_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerConcurrency = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for rate limiting, OTP storage and jobs")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or BIBLIOTRACK_JWT_SECRET)")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml)")
	}
	if cfg.MinioAccessKey == "" {
		return errors.New("config: minioAccessKey is required (set in config.yaml)")
	}
	if cfg.MinioSecretKey == "" {
		return errors.New("config: minioSecretKey is required (set in config.yaml)")
	}
	if cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.RazorpayKeyID) == "" || strings.TrimSpace(cfg.RazorpayKeySecret) == "" {
		return errors.New("config: razorpay credentials are required (set RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET)")
	}
	if strings.TrimSpace(cfg.RazorpayWebhookSecret) == "" {
		return errors.New("config: razorpayWebhookSecret is required (set RAZORPAY_WEBHOOK_SECRET)")
	}
	if cfg.LoginRateLimitPerMinute < 0 || cfg.OTPRateLimitPerMinute < 0 || cfg.ChatRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.EmbedServiceURL != "" {
		if cfg.EmbedModel == "" {
			return errors.New("config: embedModel is required when embedServiceURL is set")
		}
		if cfg.EmbedDimensions <= 0 {
			return errors.New("config: embedDimensions is required when embedServiceURL is set")
		}
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

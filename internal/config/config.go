package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	Env      string
	HTTPAddr string

	// DBDriver: sqlite / mysql / postgres
	DBDriver string
	DBDSN    string

	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）、Topic、消费者组
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（API 写入，Relay 异步转 Kafka）
	BidEventStream   string
	BidEventGroup    string
	BidEventConsumer string

	// 出价接口限流与价格快照缓存
	BidRateLimit  int
	BidRateWindow time.Duration
	PriceCacheTTL time.Duration

	JWTSecret  string
	CronSecret string

	// 每周开拍/结拍时间，GET 触发只在窗口内执行
	CronLocation  *time.Location
	OpenSchedule  Schedule
	CloseSchedule Schedule
	CronWindow    time.Duration

	// 为空时通知走 NoopSender
	WhapiToken   string
	WhapiBaseURL string

	// 通知里的金额显示：货币符号与最小单位的小数位数（分 = 2）
	CurrencySymbol     string
	CurrencyMinorUnits int
}

// IsProduction 生产环境日志用 JSON、gin 用 release 模式。
func (c AppConfig) IsProduction() bool { return c.Env == "production" }

// Load 读取并校验配置，缺失时使用默认值。工作目录下的 .env 会先被加载（已存在的环境变量优先）。
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		Env:              getEnv("APP_ENV", "development"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DBDriver:         strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:            getEnv("DB_DSN", "customs_auction.db"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:          0,
		KafkaBrokers:     splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "customs-auction-bid-events"),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "customs-auction-notifier"),
		BidEventStream:   getEnv("BID_EVENT_STREAM", "customs_auction:bid_events"),
		BidEventGroup:    getEnv("BID_EVENT_GROUP", "customs-auction-relay-group"),
		BidEventConsumer: getEnv("BID_EVENT_CONSUMER", "customs-auction-relay-1"),
		BidRateLimit:     20,
		BidRateWindow:    10 * time.Second,
		PriceCacheTTL:    24 * time.Hour,
		JWTSecret:        os.Getenv("JWT_SECRET"),
		CronSecret:       os.Getenv("CRON_SECRET"),
		CronWindow:       15 * time.Minute,
		WhapiToken:       os.Getenv("WHAPI_TOKEN"),
		WhapiBaseURL:     getEnv("WHAPI_BASE_URL", "https://gate.whapi.cloud"),
		CurrencySymbol:   getEnv("CURRENCY_SYMBOL", "$"),
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	rateLimit, err := getEnvInt("BID_RATE_LIMIT", cfg.BidRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid BID_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("BID_RATE_LIMIT must be > 0")
	}
	cfg.BidRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("BID_RATE_WINDOW_SEC", int(cfg.BidRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid BID_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("BID_RATE_WINDOW_SEC must be > 0")
	}
	cfg.BidRateWindow = time.Duration(rateWindowSec) * time.Second

	priceTTLHour, err := getEnvInt("PRICE_CACHE_TTL_HOUR", int(cfg.PriceCacheTTL.Hours()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid PRICE_CACHE_TTL_HOUR: %w", err)
	}
	if priceTTLHour <= 0 {
		return AppConfig{}, fmt.Errorf("PRICE_CACHE_TTL_HOUR must be > 0")
	}
	cfg.PriceCacheTTL = time.Duration(priceTTLHour) * time.Hour

	windowMin, err := getEnvInt("CRON_WINDOW_MIN", int(cfg.CronWindow.Minutes()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CRON_WINDOW_MIN: %w", err)
	}
	if windowMin <= 0 {
		return AppConfig{}, fmt.Errorf("CRON_WINDOW_MIN must be > 0")
	}
	cfg.CronWindow = time.Duration(windowMin) * time.Minute

	minorUnits, err := getEnvInt("CURRENCY_MINOR_UNITS", 2)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CURRENCY_MINOR_UNITS: %w", err)
	}
	if minorUnits < 0 || minorUnits > 4 {
		return AppConfig{}, fmt.Errorf("CURRENCY_MINOR_UNITS must be between 0 and 4")
	}
	cfg.CurrencyMinorUnits = minorUnits

	loc, err := time.LoadLocation(getEnv("CRON_TIMEZONE", "UTC"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CRON_TIMEZONE: %w", err)
	}
	cfg.CronLocation = loc

	if cfg.OpenSchedule, err = ParseSchedule(getEnv("OPEN_SCHEDULE", "Mon 09:00")); err != nil {
		return AppConfig{}, fmt.Errorf("invalid OPEN_SCHEDULE: %w", err)
	}
	if cfg.CloseSchedule, err = ParseSchedule(getEnv("CLOSE_SCHEDULE", "Sun 20:00")); err != nil {
		return AppConfig{}, fmt.Errorf("invalid CLOSE_SCHEDULE: %w", err)
	}

	switch cfg.DBDriver {
	case "sqlite", "mysql", "postgres":
	default:
		return AppConfig{}, fmt.Errorf("DB_DRIVER must be one of sqlite, mysql, postgres")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if cfg.KafkaGroupID == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
	}
	if cfg.BidEventStream == "" || cfg.BidEventGroup == "" || cfg.BidEventConsumer == "" {
		return AppConfig{}, fmt.Errorf("BID_EVENT_STREAM / BID_EVENT_GROUP / BID_EVENT_CONSUMER must not be empty")
	}
	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return AppConfig{}, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-jwt-secret"
	}
	if cfg.CronSecret == "" {
		if cfg.IsProduction() {
			return AppConfig{}, fmt.Errorf("CRON_SECRET is required in production")
		}
		cfg.CronSecret = "dev-cron-secret"
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	API struct {
		Port     string
		BasePath string
	}
	DB struct {
		DSN      string
		Timezone string
	}
	Influx struct {
		URL         string
		Token       string
		Org         string
		Bucket      string
		Measurement string
	}
	Kafka struct {
		Broker           string
		MeasurementTopic string
		DispatchTopic    string
		GroupID          string
	}
	Telegram struct {
		BotToken string
		ChatID   int64
	}
	Alerting struct {
		MaxLookbackDays  int
		JobDelay         time.Duration
		SkipUnclassified bool
	}
	Simulator struct {
		Interval time.Duration
		MinValue float64
		MaxValue float64
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Relational store
	cfg.DB.DSN = os.Getenv("DB_DSN")
	cfg.DB.Timezone = os.Getenv("ALERTS_TIMEZONE")

	// Time-series store
	cfg.Influx.URL = os.Getenv("INFLUXDB_URL")
	if cfg.Influx.URL == "" && os.Getenv("INFLUXDB_HOST") != "" {
		cfg.Influx.URL = fmt.Sprintf("http://%s:%s", os.Getenv("INFLUXDB_HOST"), os.Getenv("INFLUXDB_PORT"))
	}
	cfg.Influx.Token = os.Getenv("INFLUXDB_TOKEN")
	if cfg.Influx.Token == "" && os.Getenv("DOCKER_INFLUXDB_INIT_USERNAME") != "" {
		// v1 compatibility auth
		cfg.Influx.Token = os.Getenv("DOCKER_INFLUXDB_INIT_USERNAME") + ":" + os.Getenv("DOCKER_INFLUXDB_INIT_PASSWORD")
	}
	cfg.Influx.Org = os.Getenv("DOCKER_INFLUXDB_INIT_ORG")
	cfg.Influx.Bucket = os.Getenv("DOCKER_INFLUXDB_INIT_BUCKET")
	cfg.Influx.Measurement = os.Getenv("INFLUXDB_MEASUREMENT")

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.MeasurementTopic = os.Getenv("KAFKA_MEASUREMENT_TOPIC")
	cfg.Kafka.DispatchTopic = os.Getenv("KAFKA_DISPATCH_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Telegram settings
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if id, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64); err == nil {
		cfg.Telegram.ChatID = id
	}

	// Alerting settings
	if d, err := strconv.Atoi(os.Getenv("MAX_DAYS_SYNC_TIME_SEARCH")); err == nil {
		cfg.Alerting.MaxLookbackDays = d
	}
	if d, err := time.ParseDuration(os.Getenv("ASYNC_JOB_DELAY")); err == nil {
		cfg.Alerting.JobDelay = d
	}
	if b, err := strconv.ParseBool(os.Getenv("SKIP_UNCLASSIFIED")); err == nil {
		cfg.Alerting.SkipUnclassified = b
	}

	// Simulator settings
	if d, err := time.ParseDuration(os.Getenv("SIMULATOR_INTERVAL")); err == nil {
		cfg.Simulator.Interval = d
	}
	if v, err := strconv.ParseFloat(os.Getenv("SIMULATOR_MIN_VALUE"), 64); err == nil {
		cfg.Simulator.MinValue = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("SIMULATOR_MAX_VALUE"), 64); err == nil {
		cfg.Simulator.MaxValue = v
	}

	// Logging settings
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Influx.URL == "" {
		missing = append(missing, "INFLUXDB_URL")
	}
	if cfg.Influx.Bucket == "" {
		missing = append(missing, "DOCKER_INFLUXDB_INIT_BUCKET")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.API.Port == "" {
		cfg.API.Port = ":8083"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/challenge"
	}
	if cfg.DB.Timezone == "" {
		cfg.DB.Timezone = "America/Santiago"
	}
	if cfg.Influx.Measurement == "" {
		cfg.Influx.Measurement = "dispositivos"
	}
	if cfg.Kafka.MeasurementTopic == "" {
		cfg.Kafka.MeasurementTopic = "challenge.dispositivo.rx"
	}
	if cfg.Kafka.DispatchTopic == "" {
		cfg.Kafka.DispatchTopic = "challenge.alertas.enviadas"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "alert-service"
	}
	if cfg.Alerting.MaxLookbackDays <= 0 {
		cfg.Alerting.MaxLookbackDays = 30
	}
	if cfg.Alerting.JobDelay <= 0 {
		cfg.Alerting.JobDelay = time.Minute
	}
	if cfg.Simulator.Interval <= 0 {
		cfg.Simulator.Interval = 60 * time.Second
	}
	if cfg.Simulator.MaxValue <= cfg.Simulator.MinValue {
		cfg.Simulator.MinValue = 0
		cfg.Simulator.MaxValue = 1000
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

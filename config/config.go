package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"leadpilot/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

type IMAPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	UseSSL   bool   `json:"use_ssl"`
	Mailbox  string `json:"mailbox"`
}

type LinkedInConfig struct {
	BaseURL  string `json:"base_url"`
	APIToken string `json:"-"`
}

// OrchestratorConfig tunes the tick loop.
type OrchestratorConfig struct {
	TickInterval   time.Duration `json:"tick_interval"`
	ReplyInterval  time.Duration `json:"reply_interval"`
	BatchSize      int           `json:"batch_size"`
	Workers        int           `json:"workers"`
	DeepVerify     bool          `json:"deep_verify"`
	SimulationOnly bool          `json:"simulation_only"`
}

// DecisionConfig carries the auto-pause thresholds.
type DecisionConfig struct {
	WindowDays    int     `json:"window_days"`
	MaxBounceRate float64 `json:"max_bounce_rate"`
	MinReplyRate  float64 `json:"min_reply_rate"`
	MinAttempts   int     `json:"min_attempts"`
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`
	JWTSecret   string `json:"-"`
	SentryDSN   string `json:"-"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	Redis        RedisConfig        `json:"redis"`
	SMTP         SMTPConfig         `json:"smtp"`
	IMAP         IMAPConfig         `json:"imap"`
	LinkedIn     LinkedInConfig     `json:"linkedin"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Decision     DecisionConfig     `json:"decision"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		SentryDSN:   getEnv("SENTRY_DSN", ""),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "leadpilot"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ADDRESS", "") != "",
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", "outreach@leadpilot.io"),
			FromName:  getEnv("SMTP_FROM_NAME", "LeadPilot"),
		},
		IMAP: IMAPConfig{
			Host:     getEnv("IMAP_HOST", ""),
			Port:     getEnvAsInt("IMAP_PORT", 993),
			Username: getEnv("IMAP_USERNAME", ""),
			Password: getEnv("IMAP_PASSWORD", ""),
			UseSSL:   getEnvAsBool("IMAP_USE_SSL", true),
			Mailbox:  getEnv("IMAP_MAILBOX", "INBOX"),
		},
		LinkedIn: LinkedInConfig{
			BaseURL:  getEnv("LINKEDIN_GATEWAY_URL", ""),
			APIToken: getEnv("LINKEDIN_GATEWAY_TOKEN", ""),
		},
		Orchestrator: OrchestratorConfig{
			TickInterval:   getEnvAsDuration("ORCHESTRATOR_TICK_INTERVAL", 5*time.Minute),
			ReplyInterval:  getEnvAsDuration("REPLY_POLL_INTERVAL", 2*time.Minute),
			BatchSize:      getEnvAsInt("ORCHESTRATOR_BATCH_SIZE", 100),
			Workers:        getEnvAsInt("ORCHESTRATOR_WORKERS", 8),
			DeepVerify:     getEnvAsBool("QUALIFICATION_DEEP_VERIFY", false),
			SimulationOnly: getEnvAsBool("SIMULATION_ONLY", false),
		},
		Decision: DecisionConfig{
			WindowDays:    getEnvAsInt("DECISION_WINDOW_DAYS", 7),
			MaxBounceRate: getEnvAsFloat("DECISION_MAX_BOUNCE_RATE", 0.10),
			MinReplyRate:  getEnvAsFloat("DECISION_MIN_REPLY_RATE", 0),
			MinAttempts:   getEnvAsInt("DECISION_MIN_ATTEMPTS", 20),
		},
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if AppConfig.Environment == "production" && !AppConfig.Orchestrator.SimulationOnly {
		if AppConfig.SMTP.Host == "" {
			return fmt.Errorf("SMTP_HOST is required in production unless SIMULATION_ONLY is set")
		}
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value float64
	_, err := fmt.Sscanf(valueStr, "%g", &value)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := strings.ToLower(getEnv(key, ""))
	switch valueStr {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	d, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback
	}
	return d
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Channels: SMTP(%t), IMAP(%t), LinkedIn(%t), Redis(%t)",
		AppConfig.SMTP.Host != "",
		AppConfig.IMAP.Host != "",
		AppConfig.LinkedIn.BaseURL != "",
		AppConfig.Redis.Enabled)
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Campaign{},
		&models.SafetySettings{},
		&models.ChannelConfig{},
		&models.ChannelUsage{},
		&models.Lead{},
		&models.DoNotContact{},
		&models.OutreachAttempt{},
		&models.InboundMessage{},
		&models.SequenceConfig{},
		&models.SequenceStep{},
	)
}

package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration settings for the application.
// It includes the environment type, database configuration, Telegram
// credentials, the call-platform endpoint and the scheduler cadence.
type Config struct {
	Env           string          `yaml:"env"`      // Env is the current environment: local, dev, prod.
	Database      PostgresConfig  `yaml:"postgres"` // Database holds the postgres database configuration
	Token         string          `yaml:"token"`    // Token is an unique telegram bot token
	AdminIDs      []int64         `yaml:"admin_ids"`
	PollerTimeout time.Duration   `yaml:"poller_timeout"` // PollerTimeout its a time which need to close telegram bot poller
	Platform      PlatformConfig  `yaml:"platform"`       // Platform holds the call-platform API configuration
	Scheduler     SchedulerConfig `yaml:"scheduler"`      // Scheduler holds the reconciliation loop configuration
	ServerPort    int             `yaml:"server_port"`    // ServerPort is the monitoring/webhook HTTP port.
}

// PostgresConfig struct holds the configuration details for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `yaml:"host"`     // Host is the database server address.
	Port     string `yaml:"port"`     // Port is the database server port.
	User     string `yaml:"user"`     // User is the database user.
	Password string `yaml:"password"` // Password is the database user's password.
	Name     string `yaml:"db_name"`  // Name is the name of the database.
}

// PlatformConfig holds the call-platform API settings.
type PlatformConfig struct {
	BaseURL string        `yaml:"base_url"` // BaseURL points at the calls listing endpoint.
	Timeout time.Duration `yaml:"timeout"`  // Timeout caps one fetch request.
}

// SchedulerConfig holds the reconciliation loop settings.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"` // Interval is the polling cadence.
	Lookback time.Duration `yaml:"lookback"` // Lookback bounds the first fetch window of a new binding.
}

// MustLoad loads the configuration from a YAML file and returns a Config struct.
// Secrets may be supplied through the environment; a .env file is loaded first.
func MustLoad() *Config {
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		panic("config path is empty")
	}

	// check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	viper.SetConfigFile(configPath)
	if err := viper.ReadInConfig(); err != nil {
		panic("config error: " + err.Error())
	}

	viper.SetDefault("env", "production")
	viper.SetDefault("postgres.port", "5432")
	viper.SetDefault("telegram.timeout", 10*time.Second)
	viper.SetDefault("platform.base_url", "https://api.client.za-bota.com/v1/calls")
	viper.SetDefault("platform.timeout", 120*time.Second)
	viper.SetDefault("scheduler.interval", 3*time.Minute)
	viper.SetDefault("scheduler.lookback", 24*time.Hour)
	viper.SetDefault("server.port", 8080)

	adminIDs := make([]int64, 0)
	for _, id := range viper.GetIntSlice("telegram.admin_ids") {
		adminIDs = append(adminIDs, int64(id))
	}

	return &Config{
		Env:           viper.GetString("env"),
		Token:         viper.GetString("telegram.token"),
		AdminIDs:      adminIDs,
		PollerTimeout: viper.GetDuration("telegram.timeout"),
		Database: PostgresConfig{
			Host:     viper.GetString("postgres.host"),
			Port:     viper.GetString("postgres.port"),
			User:     viper.GetString("postgres.user"),
			Password: viper.GetString("postgres.password"),
			Name:     viper.GetString("postgres.db_name"),
		},
		Platform: PlatformConfig{
			BaseURL: viper.GetString("platform.base_url"),
			Timeout: viper.GetDuration("platform.timeout"),
		},
		Scheduler: SchedulerConfig{
			Interval: viper.GetDuration("scheduler.interval"),
			Lookback: viper.GetDuration("scheduler.lookback"),
		},
		ServerPort: viper.GetInt("server.port"),
	}
}

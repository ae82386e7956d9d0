package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"pm25watcher/internal/logging"
)

// Config materialises application configuration. It is built once at
// startup and never mutated afterwards.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Sensor    SensorConfig    `mapstructure:"sensor"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Report    ReportConfig    `mapstructure:"report"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SensorConfig describes the remote sensor API.
type SensorConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	DeviceID       string        `mapstructure:"device_id"`
	Channel        string        `mapstructure:"channel"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// StorageConfig locates the durable series and run log.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
	CSVFile string `mapstructure:"csv_file"`
	LogFile string `mapstructure:"log_file"`
}

// DatabaseConfig encapsulates the optional PostgreSQL mirror. An empty DSN
// disables mirroring.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// ReportConfig tunes report generation.
type ReportConfig struct {
	Threshold   float64 `mapstructure:"threshold"`
	OutputDir   string  `mapstructure:"output_dir"`
	ChartWidth  int     `mapstructure:"chart_width"`
	ChartHeight int     `mapstructure:"chart_height"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PM25WATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pm25watcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("sensor.api_url", "https://pm25.lass-net.org/API-1.0.0/device/{device_id}/history/")
	v.SetDefault("sensor.channel", "s_d0")
	v.SetDefault("sensor.request_timeout", "15s")
	v.SetDefault("sensor.user_agent", "pm25watcher/1.0")

	v.SetDefault("storage.data_dir", "pm25_data")
	v.SetDefault("storage.csv_file", "pm25_data.csv")
	v.SetDefault("storage.log_file", "pm25_logger.log")

	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_interval", false)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("report.threshold", 30.0)
	v.SetDefault("report.chart_width", 1000)
	v.SetDefault("report.chart_height", 800)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Sensor.APIURL == "" {
		return fmt.Errorf("sensor.api_url is required")
	}
	if !strings.Contains(c.Sensor.APIURL, "{device_id}") {
		return fmt.Errorf("sensor.api_url must contain the {device_id} placeholder")
	}
	if c.Sensor.RequestTimeout <= 0 {
		return fmt.Errorf("sensor.request_timeout must be greater than zero")
	}
	if c.Storage.CSVFile == "" {
		return fmt.Errorf("storage.csv_file is required")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Report.Threshold < 0 {
		return fmt.Errorf("report.threshold cannot be negative")
	}
	if c.Report.ChartWidth <= 0 || c.Report.ChartHeight <= 0 {
		return fmt.Errorf("report chart dimensions must be greater than zero")
	}
	return nil
}

// CSVPath is the location of the persisted series file.
func (c *Config) CSVPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.CSVFile)
}

// LogPath is the location of the append-only run log.
func (c *Config) LogPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.LogFile)
}

// ReportDir is where report artifacts are written; it falls back to the
// data directory when no dedicated output directory is configured.
func (c *Config) ReportDir() string {
	if c.Report.OutputDir != "" {
		return c.Report.OutputDir
	}
	return c.Storage.DataDir
}

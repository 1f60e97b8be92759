package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the service configuration file looked up in the config directory.
const FileName = "scaleformeter.cfg.json"

// ServerConfig holds the overlay server's own settings.
type ServerConfig struct {
	ListenAddr   string `json:"listenAddr" mapstructure:"listenAddr"`
	ResourceName string `json:"resourceName" mapstructure:"resourceName"`
	ConfigsDir   string `json:"configsDir" mapstructure:"configsDir"`
	OverlayDir   string `json:"overlayDir" mapstructure:"overlayDir"`
	StatusFile   string `json:"statusFile" mapstructure:"statusFile"`
	Debug        bool   `json:"debug" mapstructure:"debug"`
}

// TimeoutsConfig bounds every wait in the system. A timed-out wait is terminal
// for the attempt it belongs to.
type TimeoutsConfig struct {
	OverlayLoad    time.Duration `json:"overlayLoad" mapstructure:"overlayLoad"`
	ModelLoad      time.Duration `json:"modelLoad" mapstructure:"modelLoad"`
	Replication    time.Duration `json:"replication" mapstructure:"replication"`
	Resolve        time.Duration `json:"resolve" mapstructure:"resolve"`
	Exists         time.Duration `json:"exists" mapstructure:"exists"`
	DeleteGrace    time.Duration `json:"deleteGrace" mapstructure:"deleteGrace"`
	PollInterval   time.Duration `json:"pollInterval" mapstructure:"pollInterval"`
	RequestTimeout time.Duration `json:"requestTimeout" mapstructure:"requestTimeout"`
}

// DefaultTimeouts mirrors the defaults registered by Load. Components fall back
// to it when constructed without configuration.
func DefaultTimeouts() TimeoutsConfig {
	return TimeoutsConfig{
		OverlayLoad:    7 * time.Second,
		ModelLoad:      7 * time.Second,
		Replication:    7 * time.Second,
		Resolve:        7 * time.Second,
		Exists:         7 * time.Second,
		DeleteGrace:    time.Second,
		PollInterval:   100 * time.Millisecond,
		RequestTimeout: 20 * time.Second,
	}
}

// MinRequestTimeout is the shortest client wait for a spawn confirmation that
// outlasts the server's Resolve and Exists waits.
func (t TimeoutsConfig) MinRequestTimeout() time.Duration {
	return t.Resolve + t.Exists + time.Second
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// MemoryConfig holds settings of the in-memory backend. An empty OutputDir
// disables the ledger export on close.
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// StorageConfig selects the ledger/preference backend.
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
}

// DBConfig holds postgres connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// GraylogConfig holds the optional GELF sink settings.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// InfluxConfig holds the metrics sink settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// ClientConfig holds settings of the client runtime.
type ClientConfig struct {
	ServerURL         string `json:"serverUrl" mapstructure:"serverUrl"`
	Profile           string `json:"profile" mapstructure:"profile"`
	ScaleToDimensions bool   `json:"scaleToDimensions" mapstructure:"scaleToDimensions"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("server.listenAddr", ":30120")
	viper.SetDefault("server.resourceName", "scaleformeter")
	viper.SetDefault("server.configsDir", "./configs")
	viper.SetDefault("server.overlayDir", "./stream")
	viper.SetDefault("server.statusFile", "./status.txt")
	viper.SetDefault("server.debug", false)

	d := DefaultTimeouts()
	viper.SetDefault("timeouts.overlayLoad", d.OverlayLoad.String())
	viper.SetDefault("timeouts.modelLoad", d.ModelLoad.String())
	viper.SetDefault("timeouts.replication", d.Replication.String())
	viper.SetDefault("timeouts.resolve", d.Resolve.String())
	viper.SetDefault("timeouts.exists", d.Exists.String())
	viper.SetDefault("timeouts.deleteGrace", d.DeleteGrace.String())
	viper.SetDefault("timeouts.pollInterval", d.PollInterval.String())
	viper.SetDefault("timeouts.requestTimeout", d.RequestTimeout.String())

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./scaleformeter.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "scaleformeter")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "scaleformeter")
	viper.SetDefault("influx.bucket", "ownership")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "scaleformeter")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("client.serverUrl", "ws://localhost:30120/ws")
	viper.SetDefault("client.profile", "default")
	viper.SetDefault("client.scaleToDimensions", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetServerConfig returns the server section.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:   viper.GetString("server.listenAddr"),
		ResourceName: viper.GetString("server.resourceName"),
		ConfigsDir:   viper.GetString("server.configsDir"),
		OverlayDir:   viper.GetString("server.overlayDir"),
		StatusFile:   viper.GetString("server.statusFile"),
		Debug:        viper.GetBool("server.debug"),
	}
}

// GetTimeoutsConfig returns the wait bounds. RequestTimeout is raised to
// MinRequestTimeout when configured lower.
func GetTimeoutsConfig() TimeoutsConfig {
	tc := TimeoutsConfig{
		OverlayLoad:    viper.GetDuration("timeouts.overlayLoad"),
		ModelLoad:      viper.GetDuration("timeouts.modelLoad"),
		Replication:    viper.GetDuration("timeouts.replication"),
		Resolve:        viper.GetDuration("timeouts.resolve"),
		Exists:         viper.GetDuration("timeouts.exists"),
		DeleteGrace:    viper.GetDuration("timeouts.deleteGrace"),
		PollInterval:   viper.GetDuration("timeouts.pollInterval"),
		RequestTimeout: viper.GetDuration("timeouts.requestTimeout"),
	}
	if minimum := tc.MinRequestTimeout(); tc.RequestTimeout < minimum {
		tc.RequestTimeout = minimum
	}
	return tc
}

// GetStorageConfig returns the storage section.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
	}
}

// GetDBConfig returns the postgres connection section.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetOTelConfig returns the otel section.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetGraylogConfig returns the graylog section.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetInfluxConfig returns the influx section.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Protocol: viper.GetString("influx.protocol"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetClientConfig returns the client section.
func GetClientConfig() ClientConfig {
	return ClientConfig{
		ServerURL:         viper.GetString("client.serverUrl"),
		Profile:           viper.GetString("client.profile"),
		ScaleToDimensions: viper.GetBool("client.scaleToDimensions"),
	}
}

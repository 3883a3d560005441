package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Modbus     ModbusConfig     `mapstructure:"modbus"`
	Fleet      FleetConfig      `mapstructure:"fleet"`
	PV         PVConfig         `mapstructure:"pv"`
	Wallbox    WallboxConfig    `mapstructure:"wallbox"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Database   DatabaseConfig   `mapstructure:"database"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SimulationConfig struct {
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	ErrorCooldown time.Duration `mapstructure:"error_cooldown"`
	DefaultSpeed  float64       `mapstructure:"default_speed"`
	BaselineSpeed float64       `mapstructure:"baseline_speed"`
	// Seed 0 seeds every device from the clock.
	Seed uint64 `mapstructure:"seed"`
}

type ModbusConfig struct {
	RegisterCount       int           `mapstructure:"register_count"`
	UnitID              int           `mapstructure:"unit_id"`
	DefaultTimeout      time.Duration `mapstructure:"default_timeout"`
	DefaultPollInterval time.Duration `mapstructure:"default_poll_interval"`
	PollPause           time.Duration `mapstructure:"poll_pause"`
}

// FleetConfig describes which devices to simulate. Devices from FleetFile and
// Devices are combined; when both are empty PVCount inverters and
// WallboxCount chargers are generated on consecutive ports.
type FleetConfig struct {
	Host         string         `mapstructure:"host"`
	BasePort     int            `mapstructure:"base_port"`
	PVCount      int            `mapstructure:"pv_count"`
	WallboxCount int            `mapstructure:"wallbox_count"`
	FleetFile    string         `mapstructure:"fleet_file"`
	Devices      []DeviceConfig `mapstructure:"devices"`
}

type DeviceConfig struct {
	Kind    types.DeviceKind `mapstructure:"kind" yaml:"kind"`
	ID      int              `mapstructure:"id" yaml:"id"`
	Address string           `mapstructure:"address" yaml:"address"`
}

func (d DeviceConfig) Key() types.DeviceKey {
	return types.DeviceKey{Kind: d.Kind, ID: d.ID}
}

type PVConfig struct {
	PeakPower        float64 `mapstructure:"peak_power"`
	Efficiency       float64 `mapstructure:"efficiency"`
	NominalVoltage   float64 `mapstructure:"nominal_voltage"`
	NominalFrequency float64 `mapstructure:"nominal_frequency"`
	DCNominalVoltage float64 `mapstructure:"dc_nominal_voltage"`
	FeedingThreshold float64 `mapstructure:"feeding_threshold"`
	PFThreshold      float64 `mapstructure:"pf_threshold"`
	VoltageJitter    float64 `mapstructure:"voltage_jitter"`
	PowerJitter      float64 `mapstructure:"power_jitter"`
}

type WallboxConfig struct {
	NominalPower       float64 `mapstructure:"nominal_power"`
	PowerJitter        float64 `mapstructure:"power_jitter"`
	BatteryCapacity    float64 `mapstructure:"battery_capacity"`
	InitialSoC         float64 `mapstructure:"initial_soc"`
	InitiallyConnected bool    `mapstructure:"initially_connected"`
	MinStartSoC        float64 `mapstructure:"min_start_soc"`
}

// Auth Configuration
type AuthConfig struct {
	Enabled        bool             `mapstructure:"enabled"`
	JWTSecretEnv   string           `mapstructure:"jwt_secret_env"`
	AccessTokenTTL time.Duration    `mapstructure:"access_token_ttl"`
	Operators      []OperatorConfig `mapstructure:"operators"`
}

// OperatorConfig holds an argon2id PHC string, never a plain password.
type OperatorConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type MQTTConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	QoS            int           `mapstructure:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 5010)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("simulation.tick_interval", "2s")
	v.SetDefault("simulation.error_cooldown", "10s")
	v.SetDefault("simulation.default_speed", 1.0)
	v.SetDefault("simulation.baseline_speed", 1.0)
	v.SetDefault("simulation.seed", 0)

	v.SetDefault("modbus.register_count", 100)
	v.SetDefault("modbus.unit_id", 1)
	v.SetDefault("modbus.default_timeout", "5s")
	v.SetDefault("modbus.default_poll_interval", "30s")
	v.SetDefault("modbus.poll_pause", "500ms")

	v.SetDefault("fleet.host", "127.0.0.1")
	v.SetDefault("fleet.base_port", 5020)
	v.SetDefault("fleet.pv_count", 12)
	v.SetDefault("fleet.wallbox_count", 0)
	v.SetDefault("fleet.fleet_file", "")

	v.SetDefault("pv.peak_power", 10000.0)
	v.SetDefault("pv.efficiency", 0.97)
	v.SetDefault("pv.nominal_voltage", 230.0)
	v.SetDefault("pv.nominal_frequency", 50.0)
	v.SetDefault("pv.dc_nominal_voltage", 600.0)
	v.SetDefault("pv.feeding_threshold", 10.0)
	v.SetDefault("pv.pf_threshold", 1000.0)
	v.SetDefault("pv.voltage_jitter", 0.5)
	v.SetDefault("pv.power_jitter", 0.01)

	v.SetDefault("wallbox.nominal_power", 11000.0)
	v.SetDefault("wallbox.power_jitter", 0.01)
	v.SetDefault("wallbox.battery_capacity", 60000.0)
	v.SetDefault("wallbox.initial_soc", 30.0)
	v.SetDefault("wallbox.initially_connected", true)
	v.SetDefault("wallbox.min_start_soc", 20.0)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "openfieldsim")
	v.SetDefault("database.user", "openfieldsim")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_connections", 4)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "openfieldsim")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "openfieldsim")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.connect_timeout", "10s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads the YAML file at path on top of the defaults. An empty path or a
// missing file yields the defaults; OFS_ environment variables override both
// (OFS_SERVER_HTTP_PORT for server.http_port).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Defaults setzen
	setDefaults(v)

	v.SetEnvPrefix("OFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Simulation.TickInterval <= 0 {
		return fmt.Errorf("simulation.tick_interval must be positive")
	}
	if c.Simulation.ErrorCooldown <= 0 {
		return fmt.Errorf("simulation.error_cooldown must be positive")
	}
	if c.Simulation.BaselineSpeed <= 0 {
		return fmt.Errorf("simulation.baseline_speed must be positive")
	}
	if c.Modbus.RegisterCount < 29 || c.Modbus.RegisterCount > 65536 {
		return fmt.Errorf("modbus.register_count %d does not fit the register maps", c.Modbus.RegisterCount)
	}
	if c.Wallbox.BatteryCapacity <= 0 {
		return fmt.Errorf("wallbox.battery_capacity must be positive")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

const devJWTSecret = "dev-secret-change-in-production-min-32-chars"

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		return devJWTSecret
	}
	return secret
}

func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devJWTSecret && len(secret) >= 32
}
